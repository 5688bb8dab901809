// Package metrics exposes run counters for the node-exporter textfile
// collector. Batch processes have no scrape endpoint, so the registry is
// flushed to a file after each run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	reg *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
	checks   *prometheus.CounterVec
}

// NewRecorder registers the pipeline metrics on a private registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tip",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Connector runs by terminal status.",
		}, []string{"job", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tip",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of connector runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"job"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tip",
			Subsystem: "pipeline",
			Name:      "rows_written_total",
			Help:      "Rows upserted by connector runs.",
		}, []string{"job"}),
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tip",
			Subsystem: "pipeline",
			Name:      "checks_total",
			Help:      "Quality checks recorded, by status.",
		}, []string{"job", "status"}),
	}
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(job, status string, d time.Duration, rowsWritten int64) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(job, status).Inc()
	r.duration.WithLabelValues(job).Observe(d.Seconds())
	if rowsWritten > 0 {
		r.rows.WithLabelValues(job).Add(float64(rowsWritten))
	}
}

// ObserveCheck counts one recorded check.
func (r *Recorder) ObserveCheck(job, status string) {
	if r == nil {
		return
	}
	r.checks.WithLabelValues(job, status).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
