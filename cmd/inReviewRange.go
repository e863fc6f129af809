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

	"golang.org/x/time/rate"

	"github.com/ademuri/apple-music-reports/internal/report"
)

// getInReviewRange fetches every day in the range in order, pacing requests
// by the configured interval. It stops at the first day that fails.
func (a *app) getInReviewRange(ctx context.Context, arg string, skipDownloaded bool) error {
	start, end, err := parseDateRange(arg)
	if err != nil {
		return err
	}

	limit := rate.Inf
	if a.settings.RequestInterval > 0 {
		limit = rate.Every(a.settings.RequestInterval)
	}
	limiter := rate.NewLimiter(limit, 1)
	writer := report.NewOSWriter(a.settings.Out)

	fetched, skipped := 0, 0
	for _, day := range reportingDays(start, end) {
		if skipDownloaded && a.history != nil {
			last, err := a.history.LastSuccess(report.TypeInReview, day)
			if err != nil {
				return err
			}
			if !last.IsZero() {
				a.log.Debug().Str("day", day).Time("fetched_at", last).Msg("already downloaded, skipping")
				skipped++
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := a.fetchInReview(ctx, day, func(body string) (string, error) {
			return writer.WriteInReview(day, body)
		})
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		fetched++
	}

	a.log.Info().Int("fetched", fetched).Int("skipped", skipped).Msg("range complete")
	return nil
}
