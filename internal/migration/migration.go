// Package migration holds the SQL schema of the download history database.
package migration

import _ "embed"

// Create builds every table on a fresh database.
//
//go:embed create-tables.sql
var Create string
