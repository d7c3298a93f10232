// Package metrics records per-run sync metrics in a private Prometheus
// registry and writes them out in the node-exporter textfile format, the
// usual way to publish metrics from a batch job.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Chunk outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeTimeout       = "timeout"
	OutcomeUpstreamError = "upstream_error"
	OutcomeSinkError     = "sink_error"
)

// Recorder holds the sync metrics.
type Recorder struct {
	reg *prometheus.Registry

	chunks      *prometheus.CounterVec
	rows        *prometheus.CounterVec
	plannedDays *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	duration    *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adsync_chunks_total",
			Help: "Chunks processed, by outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adsync_rows_total",
			Help: "Rows handled, by operation (fetched, filtered, skipped, deleted, inserted).",
		}, []string{"op"}),
		plannedDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adsync_planned_days",
			Help: "Days scheduled for fetching by the last run, by mode.",
		}, []string{"mode"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adsync_last_success_timestamp_seconds",
			Help: "Unix time of the last run that returned no error and had no failed chunks, by mode.",
		}, []string{"mode"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adsync_run_duration_seconds",
			Help: "Wall time of the last run, by mode.",
		}, []string{"mode"}),
	}
	r.reg.MustRegister(r.chunks, r.rows, r.plannedDays, r.lastSuccess, r.duration)
	return r
}

// Chunk counts one processed chunk.
func (r *Recorder) Chunk(outcome string) {
	r.chunks.WithLabelValues(outcome).Inc()
}

// Rows adds n rows to the counter for op.
func (r *Recorder) Rows(op string, n int64) {
	if n > 0 {
		r.rows.WithLabelValues(op).Add(float64(n))
	}
}

// Planned records how many days a run scheduled.
func (r *Recorder) Planned(mode string, days int) {
	r.plannedDays.WithLabelValues(mode).Set(float64(days))
}

// Finished records a run's duration and, if it succeeded, its completion
// time.
func (r *Recorder) Finished(mode string, started time.Time, succeeded bool) {
	now := time.Now()
	r.duration.WithLabelValues(mode).Set(now.Sub(started).Seconds())
	if succeeded {
		r.lastSuccess.WithLabelValues(mode).Set(float64(now.Unix()))
	}
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
