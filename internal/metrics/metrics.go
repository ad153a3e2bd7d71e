// Package metrics exposes run and step counters for scraping or for export
// to a node_exporter textfile.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every uiverify collector. It is separate from the default
// registry so exports contain only uiverify series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	metricRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uiverify",
		Name:      "runs_total",
		Help:      "Script runs by script name and outcome.",
	}, []string{"script", "status"})
	metricSteps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uiverify",
		Name:      "steps_total",
		Help:      "Executed steps by action and outcome.",
	}, []string{"action", "status"})
	metricStepDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "uiverify",
		Name:      "step_duration_seconds",
		Help:      "Step execution time by action.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})
	metricGovinfoRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uiverify",
		Name:      "govinfo_requests_total",
		Help:      "Bill title service responses by endpoint and HTTP status code.",
	}, []string{"endpoint", "code"})
)

// RecordRun counts a finished run.
func RecordRun(script, status string) {
	metricRuns.WithLabelValues(script, status).Inc()
}

// RecordStep counts a step outcome and observes its duration. Skipped steps
// are counted but not timed.
func RecordStep(action, status string, d time.Duration) {
	metricSteps.WithLabelValues(action, status).Inc()
	if status != "skipped" {
		metricStepDuration.WithLabelValues(action).Observe(d.Seconds())
	}
}

// RecordTitleResponse counts one bill title service response.
func RecordTitleResponse(endpoint string, code int) {
	metricGovinfoRequests.WithLabelValues(endpoint, fmt.Sprint(code)).Inc()
}

// WriteTextfile writes the registry in the Prometheus text format, atomically
// replacing path.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
