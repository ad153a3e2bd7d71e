// Package store persists run outcomes in a local SQLite database so past
// runs can be listed and compared.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"uiverify/internal/logging"
	"uiverify/internal/report"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Run is one row of run history.
type Run struct {
	ID          string
	Script      string
	Status      report.Status
	ErrorKind   string
	Error       string
	FailedStep  *int
	StartedAt   time.Time
	DurationMs  int64
	StepsPassed int
	StepsTotal  int
	ReportJSON  string
}

// Report decodes the stored report.
func (r Run) Report() (*report.Report, error) {
	var rep report.Report
	if err := json.Unmarshal([]byte(r.ReportJSON), &rep); err != nil {
		return nil, fmt.Errorf("failed to decode stored report %s: %w", r.ID, err)
	}
	return &rep, nil
}

// History is the run history database.
type History struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the history database at path.
func Open(path string) (*History, error) {
	log := logging.Get(logging.CategoryStore)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set journal_mode=WAL", zap.Error(err))
	}

	h := &History{db: db, dbPath: path}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Debug("history opened", zap.String("path", path))
	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.dbPath
}

func (h *History) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		script TEXT NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT,
		error TEXT,
		failed_step INTEGER,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		steps_passed INTEGER NOT NULL,
		steps_total INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_script ON runs(script, started_at);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Record stores a finished run. Recording the same run id twice replaces the
// earlier row.
func (h *History) Record(ctx context.Context, rep *report.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	passed, _, _ := rep.Counts()

	var failed sql.NullInt64
	if rep.FailedStep != nil {
		failed = sql.NullInt64{Int64: int64(*rep.FailedStep), Valid: true}
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, script, status, error_kind, error, failed_step, started_at, duration_ms, steps_passed, steps_total, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.Script, string(rep.Status), rep.ErrorKind, rep.Error, failed,
		rep.StartedAt.UnixMilli(), rep.DurationMs, passed, len(rep.Steps), string(data))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", rep.ID, err)
	}
	return nil
}

// Recent lists the newest runs first.
func (h *History) Recent(ctx context.Context, limit int) ([]Run, error) {
	return h.query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, clampLimit(limit))
}

// ByScript lists the newest runs of one script first.
func (h *History) ByScript(ctx context.Context, script string, limit int) ([]Run, error) {
	return h.query(ctx, `SELECT `+runColumns+` FROM runs WHERE script = ? ORDER BY started_at DESC, id LIMIT ?`,
		script, clampLimit(limit))
}

// Get returns one run by id.
func (h *History) Get(ctx context.Context, id string) (*Run, error) {
	runs, err := h.query(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return &runs[0], nil
}

const runColumns = `id, script, status, error_kind, error, failed_step, started_at, duration_ms, steps_passed, steps_total, report_json`

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func (h *History) query(ctx context.Context, q string, args ...any) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                Run
			status           string
			errKind, errText sql.NullString
			failed           sql.NullInt64
			startedMs        int64
		)
		if err := rows.Scan(&r.ID, &r.Script, &status, &errKind, &errText, &failed,
			&startedMs, &r.DurationMs, &r.StepsPassed, &r.StepsTotal, &r.ReportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Status = report.Status(status)
		r.ErrorKind = errKind.String
		r.Error = errText.String
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		if failed.Valid {
			n := int(failed.Int64)
			r.FailedStep = &n
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
