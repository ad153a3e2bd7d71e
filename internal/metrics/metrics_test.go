package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// series returns the exported sample lines of metric whose labels contain
// match.
func series(t *testing.T, metric, match string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uiverify.prom")
	require.NoError(t, WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, metric+"{") && strings.Contains(line, match) {
			out = append(out, line)
		}
	}
	return out
}

func TestRecordRun(t *testing.T) {
	RecordRun("metrics-test", "passed")
	RecordRun("metrics-test", "passed")
	RecordRun("metrics-test", "failed")

	assert.Equal(t, []string{
		`uiverify_runs_total{script="metrics-test",status="failed"} 1`,
		`uiverify_runs_total{script="metrics-test",status="passed"} 2`,
	}, series(t, "uiverify_runs_total", `script="metrics-test"`))
}

func TestRecordStep_SkippedIsNotTimed(t *testing.T) {
	RecordStep("metrics_test_action", "passed", 200*time.Millisecond)
	RecordStep("metrics_test_action", "skipped", 0)

	assert.Equal(t, []string{
		`uiverify_steps_total{action="metrics_test_action",status="passed"} 1`,
		`uiverify_steps_total{action="metrics_test_action",status="skipped"} 1`,
	}, series(t, "uiverify_steps_total", "metrics_test_action"))

	assert.Equal(t, []string{
		`uiverify_step_duration_seconds_count{action="metrics_test_action"} 1`,
	}, series(t, "uiverify_step_duration_seconds_count", "metrics_test_action"))
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "m.prom"))
	assert.ErrorContains(t, err, "failed to write metrics textfile")
}

func TestHandler(t *testing.T) {
	RecordTitleResponse("govinfo", http.StatusNotFound)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `uiverify_govinfo_requests_total{code="404",endpoint="govinfo"}`)
}
