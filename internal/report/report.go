// Package report holds the outcome of script runs and renders it as JSON or
// as a terminal summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Status is the outcome of a run or a step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult records one executed (or skipped) step. Index 0 is the implicit
// navigation to the script URL; script steps are numbered from 1.
type StepResult struct {
	Index       int    `json:"index"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Locator     string `json:"locator,omitempty"`
	Status      Status `json:"status"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
}

// ConsoleEntry is a console message captured from the page under test.
type ConsoleEntry struct {
	Type string    `json:"type"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Report is the outcome of one script run.
type Report struct {
	ID          string         `json:"id"`
	Script      string         `json:"script"`
	Source      string         `json:"source,omitempty"`
	URL         string         `json:"url"`
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	DurationMs  int64          `json:"duration_ms"`
	Steps       []StepResult   `json:"steps"`
	FailedStep  *int           `json:"failed_step,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	Screenshots []string       `json:"screenshots,omitempty"`
	Console     []ConsoleEntry `json:"console,omitempty"`
}

// Passed reports whether every step succeeded.
func (r *Report) Passed() bool {
	return r.Status == StatusPassed
}

// Counts tallies step outcomes.
func (r *Report) Counts() (passed, failed, skipped int) {
	for _, s := range r.Steps {
		switch s.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// Finish stamps the end time and derives the overall status.
func (r *Report) Finish(at time.Time) {
	r.FinishedAt = at
	r.DurationMs = at.Sub(r.StartedAt).Milliseconds()
	if r.Error != "" || r.FailedStep != nil {
		r.Status = StatusFailed
		return
	}
	for _, s := range r.Steps {
		if s.Status != StatusPassed {
			r.Status = StatusFailed
			return
		}
	}
	r.Status = StatusPassed
}

// Write encodes reports as an indented JSON array.
func Write(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if reports == nil {
		reports = []*Report{}
	}
	return enc.Encode(reports)
}

// WriteFile writes reports to path, creating parent directories.
func WriteFile(path string, reports []*Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := Write(f, reports); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
