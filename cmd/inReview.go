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
	"context"
	"fmt"
	"net/http"

	"github.com/ademuri/apple-music-reports/internal/report"
	"github.com/ademuri/apple-music-reports/internal/store"
)

// APIError is a report request that came back with something other than 200.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned an HTTP %d.", e.StatusCode)
}

// getInReview fetches the in-review report for one day and saves it to
// --out, or to in-review-<date>.tsv in the working directory.
func (a *app) getInReview(ctx context.Context, date string) error {
	if _, err := parseReportingDay(date); err != nil {
		return err
	}

	writer := report.NewOSWriter("")
	_, err := a.fetchInReview(ctx, date, func(body string) (string, error) {
		if a.settings.Out != "" {
			return a.settings.Out, writer.WriteTo(a.settings.Out, body)
		}
		return writer.WriteInReview(date, body)
	})
	return err
}

// fetchInReview requests one day and hands a 200 body to save. Every
// attempt is recorded in the download history.
func (a *app) fetchInReview(ctx context.Context, date string, save func(body string) (string, error)) (string, error) {
	resp, err := a.client.InReviewReport(ctx, date)
	if err != nil {
		return "", err
	}

	d := store.Download{
		ReportType: report.TypeInReview,
		ReportDate: date,
		StatusCode: resp.StatusCode,
	}
	if resp.StatusCode != http.StatusOK {
		a.record(d)
		a.log.Debug().Int("status", resp.StatusCode).Str("body", resp.Body).Msg("report request failed")
		return "", &APIError{StatusCode: resp.StatusCode}
	}

	path, err := save(resp.Body)
	if err != nil {
		return "", err
	}
	d.Bytes = len(resp.Body)
	d.Path = path
	a.record(d)

	fmt.Fprintf(a.out, "Saved in-review report for %s to %s\n", date, path)
	return path, nil
}
