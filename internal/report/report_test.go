package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedReport() *Report {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	idx := 2
	r := &Report{
		ID:        "run-1",
		Script:    "create-atom",
		URL:       "http://localhost:5173",
		StartedAt: start,
		Steps: []StepResult{
			{Index: 0, Action: "navigate", Description: "navigate http://localhost:5173", Status: StatusPassed, DurationMs: 120},
			{Index: 1, Action: "click", Description: `click role=button[name="Add Atom"]`, Status: StatusPassed, DurationMs: 40},
			{Index: 2, Action: "assert", Description: `assert text=Plain is visible`, Status: StatusFailed,
				Error: `expected visible, got hidden`, ErrorKind: "assertion_mismatch"},
			{Index: 3, Action: "screenshot", Description: "screenshot create-atom.png", Status: StatusSkipped},
		},
		FailedStep: &idx,
		Error:      "step 2 (assert): expected visible, got hidden",
		ErrorKind:  "assertion_mismatch",
	}
	r.Finish(start.Add(1500 * time.Millisecond))
	return r
}

func TestReport_Finish(t *testing.T) {
	r := failedReport()
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, int64(1500), r.DurationMs)

	passed, failed, skipped := r.Counts()
	assert.Equal(t, []int{2, 1, 1}, []int{passed, failed, skipped})

	ok := &Report{StartedAt: r.StartedAt, Steps: []StepResult{{Status: StatusPassed}}}
	ok.Finish(r.StartedAt)
	assert.True(t, ok.Passed())

	empty := &Report{Error: "could not launch"}
	empty.Finish(time.Now())
	assert.False(t, empty.Passed())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, WriteFile(path, []*Report{failedReport()}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "failed", decoded[0]["status"])
	assert.Equal(t, float64(2), decoded[0]["failed_step"])
	assert.Len(t, decoded[0]["steps"], 4)
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestSummary(t *testing.T) {
	out := Summary([]*Report{failedReport()}, PlainStyles(), false)
	assert.Contains(t, out, "FAILED create-atom")
	assert.Contains(t, out, "2 passed, 1 failed, 1 skipped")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "expected visible, got hidden")
	assert.Contains(t, out, "skip")
	assert.NotContains(t, out, "Add Atom", "passed steps are hidden unless verbose")
	assert.Contains(t, out, "1 run(s): 0 passed, 1 failed")

	verbose := Summary([]*Report{failedReport()}, PlainStyles(), true)
	assert.Contains(t, verbose, "Add Atom")
}

func TestTable_View(t *testing.T) {
	tbl := NewTable("History", "SCRIPT", "STATUS")
	assert.Empty(t, tbl.View(PlainStyles()))

	tbl.AddRow("create-atom", "passed")
	tbl.AddRow("view-modes", "failed")
	out := tbl.View(PlainStyles())
	assert.Contains(t, out, "History")
	assert.Contains(t, out, "SCRIPT")
	assert.Contains(t, out, "view-modes")
	assert.Contains(t, out, "---")
}
