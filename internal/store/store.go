package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ademuri/apple-music-reports/internal/migration"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the download history: one row per report fetch attempt.
type Store struct {
	db *sql.DB
}

type Download struct {
	ReportType string
	ReportDate string
	StatusCode int
	Bytes      int
	// Path is empty when nothing was written.
	Path      string
	FetchedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	exists, err := dbExists(db)
	if err != nil {
		return err
	}

	if !exists {
		if _, err := db.Exec(migration.Create); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

func dbExists(db *sql.DB) (bool, error) {
	// Check for 'Download' table as a proxy for DB existence
	row := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'Download'")
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking db existence: %w", err)
	}
	return true, nil
}

func (s *Store) RecordDownload(d Download) error {
	if d.FetchedAt.IsZero() {
		d.FetchedAt = time.Now()
	}
	_, err := s.db.Exec(
		"INSERT INTO Download (report_type, report_date, status, bytes, path, fetched_at) VALUES (?, ?, ?, ?, ?, ?)",
		d.ReportType, d.ReportDate, d.StatusCode, d.Bytes, d.Path, d.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording download of %s %s: %w", d.ReportType, d.ReportDate, err)
	}
	return nil
}

// ListDownloads returns the history, newest first. An empty reportType
// returns every type.
func (s *Store) ListDownloads(reportType string) ([]Download, error) {
	var rows *sql.Rows
	var err error
	const columns = "SELECT report_type, report_date, status, bytes, path, fetched_at FROM Download"
	if reportType != "" {
		rows, err = s.db.Query(columns+" WHERE report_type = ? ORDER BY fetched_at DESC, id DESC", reportType)
	} else {
		rows, err = s.db.Query(columns + " ORDER BY fetched_at DESC, id DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		var d Download
		if err := rows.Scan(&d.ReportType, &d.ReportDate, &d.StatusCode, &d.Bytes, &d.Path, &d.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		downloads = append(downloads, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}
	return downloads, nil
}

// LastSuccess returns when date was last fetched with a 200, or the zero time.
func (s *Store) LastSuccess(reportType, date string) (time.Time, error) {
	row := s.db.QueryRow(
		"SELECT fetched_at FROM Download WHERE report_type = ? AND report_date = ? AND status = 200 ORDER BY fetched_at DESC LIMIT 1",
		reportType, date)
	var t time.Time
	err := row.Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting last success for %s %s: %w", reportType, date, err)
	}
	return t, nil
}
