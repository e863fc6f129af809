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
package report

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

const TypeInReview = "in-review"

// FileName is the default name of a report file, e.g. in-review-2022-11-10.tsv.
func FileName(reportType, date string) string {
	return fmt.Sprintf("%s-%s.tsv", reportType, date)
}

// Writer persists report bodies verbatim.
type Writer struct {
	fs  afero.Fs
	dir string
}

// NewWriter writes into dir on fs. An empty dir is the working directory.
func NewWriter(fs afero.Fs, dir string) *Writer {
	return &Writer{fs: fs, dir: dir}
}

// NewOSWriter writes into dir on the real filesystem.
func NewOSWriter(dir string) *Writer {
	return NewWriter(afero.NewOsFs(), dir)
}

// WriteInReview stores body as the in-review report for date and returns the
// path written.
func (w *Writer) WriteInReview(date, body string) (string, error) {
	path := FileName(TypeInReview, date)
	if w.dir != "" {
		if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory: %w", err)
		}
		path = filepath.Join(w.dir, path)
	}
	return path, w.WriteTo(path, body)
}

// WriteTo stores body at path, creating or truncating the file.
func (w *Writer) WriteTo(path, body string) error {
	if err := afero.WriteFile(w.fs, path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
