// Package report writes the per-run JSON audit document. Reports are written
// once and never read back by this system.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rahul/webpilot/internal/agent"
)

// Document is the persisted report shape.
type Document struct {
	Objective string        `json:"objective"`
	StartURL  string        `json:"startUrl"`
	Achieved  bool          `json:"achieved"`
	History   []agent.Entry `json:"history"`
}

// Write renders the run result to a timestamped file under dir, creating the
// directory if needed, and returns the file path.
func Write(dir string, res agent.RunResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	doc := Document{
		Objective: res.Objective,
		StartURL:  res.StartURL,
		Achieved:  res.Achieved,
		History:   res.History,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	path, f, err := createReportFile(dir, time.Now())
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// createReportFile opens a fresh report file, never an existing one. The name
// is timestamped at second granularity, so runs finishing within the same
// second collide; collisions get a numeric suffix instead of truncating the
// earlier run's report.
func createReportFile(dir string, now time.Time) (string, *os.File, error) {
	stamp := now.Format("20060102_150405")
	for i := 0; ; i++ {
		name := fmt.Sprintf("run_report_%s.json", stamp)
		if i > 0 {
			name = fmt.Sprintf("run_report_%s_%d.json", stamp, i+1)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("creating report file: %w", err)
		}
		return path, f, nil
	}
}
