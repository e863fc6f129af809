/*
Copyright 2026 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ademuri/apple-music-reports/internal/config"
	"github.com/ademuri/apple-music-reports/internal/store"
)

func listDownloads(settings config.Settings, out io.Writer) error {
	if settings.Database == "" {
		return fmt.Errorf("%w: --list-downloads needs a database", config.ErrInvalidConfig)
	}

	history, err := store.New(settings.Database)
	if err != nil {
		return fmt.Errorf("opening download history: %w", err)
	}
	defer history.Close()

	downloads, err := history.ListDownloads("")
	if err != nil {
		return err
	}
	if len(downloads) == 0 {
		fmt.Fprintln(out, "No downloads recorded.")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Date", "Type", "Status", "Bytes", "Path", "Fetched"})
	for _, d := range downloads {
		row := []string{
			d.ReportDate,
			d.ReportType,
			strconv.Itoa(d.StatusCode),
			strconv.Itoa(d.Bytes),
			d.Path,
			d.FetchedAt.Local().Format(time.DateTime),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}

	fmt.Fprintf(out, "Downloads recorded: %d\n", len(downloads))
	return nil
}
