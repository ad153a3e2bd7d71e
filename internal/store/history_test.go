package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"uiverify/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func makeReport(id, script string, started time.Time, passed bool) *report.Report {
	r := &report.Report{
		ID:        id,
		Script:    script,
		URL:       "http://localhost:5173",
		StartedAt: started,
		Steps: []report.StepResult{
			{Index: 0, Action: "navigate", Status: report.StatusPassed},
			{Index: 1, Action: "click", Status: report.StatusPassed},
		},
	}
	if !passed {
		idx := 1
		r.Steps[1].Status = report.StatusFailed
		r.FailedStep = &idx
		r.Error = "element not found"
		r.ErrorKind = "element_not_found"
	}
	r.Finish(started.Add(time.Second))
	return r
}

func TestHistory_RecordAndRecent(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, makeReport("a", "create-atom", base, true)))
	require.NoError(t, h.Record(ctx, makeReport("b", "view-modes", base.Add(time.Minute), false)))
	require.NoError(t, h.Record(ctx, makeReport("c", "create-atom", base.Add(2*time.Minute), false)))

	runs, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	c := runs[0]
	assert.Equal(t, report.StatusFailed, c.Status)
	assert.Equal(t, "element_not_found", c.ErrorKind)
	assert.Equal(t, 1, c.StepsPassed)
	assert.Equal(t, 2, c.StepsTotal)
	require.NotNil(t, c.FailedStep)
	assert.Equal(t, 1, *c.FailedStep)
	assert.True(t, base.Add(2*time.Minute).Equal(c.StartedAt))
	assert.Equal(t, int64(1000), c.DurationMs)

	a := runs[2]
	assert.Nil(t, a.FailedStep)
	assert.Empty(t, a.Error)

	limited, err := h.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHistory_ByScript(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Record(ctx, makeReport(fmt.Sprintf("ca-%d", i), "create-atom", base.Add(time.Duration(i)*time.Hour), true)))
	}
	require.NoError(t, h.Record(ctx, makeReport("vm", "view-modes", base, true)))

	runs, err := h.ByScript(ctx, "create-atom", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "ca-2", runs[0].ID)

	none, err := h.ByScript(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistory_GetAndReport(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	original := makeReport("x", "search-fill", time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), false)
	require.NoError(t, h.Record(ctx, original))

	run, err := h.Get(ctx, "x")
	require.NoError(t, err)
	decoded, err := run.Report()
	require.NoError(t, err)
	assert.Equal(t, original.Script, decoded.Script)
	assert.Equal(t, original.Steps, decoded.Steps)

	_, err = h.Get(ctx, "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestHistory_RecordReplacesSameID(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, makeReport("same", "create-atom", now, false)))
	require.NoError(t, h.Record(ctx, makeReport("same", "create-atom", now, true)))

	runs, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.StatusPassed, runs[0].Status)
}

func TestHistory_ReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, h.Record(context.Background(), makeReport("keep", "create-atom", time.Now(), true)))
	require.NoError(t, h.Close())

	h, err = Open(path)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, path, h.Path())
	runs, err := h.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
