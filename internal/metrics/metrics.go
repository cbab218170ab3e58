// Package metrics records conversion job metrics and exports them as a Prometheus textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job status labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics are the conversion job metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	artifacts *prometheus.CounterVec
	cacheHits prometheus.Counter
	failures  prometheus.Counter
	duration  prometheus.Histogram
	jobs      *prometheus.CounterVec
}

// New creates the job metrics and registers them into reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cad2web_artifacts_total",
			Help: "Number of artifacts written, by kind.",
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cad2web_cache_hits_total",
			Help: "Number of shapes whose artifact already existed.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cad2web_entry_failures_total",
			Help: "Number of container entries skipped after a geometry import failure.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cad2web_job_duration_seconds",
			Help:    "Duration of conversion jobs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cad2web_jobs_total",
			Help: "Number of conversion jobs, by input format and status.",
		}, []string{"format", "status"}),
	}

	for _, c := range []prometheus.Collector{m.artifacts, m.cacheHits, m.failures, m.duration, m.jobs} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register job metric: %v", err)
		}
	}
	return m, nil
}

// Artifact counts a written artifact of kind.
func (m *Metrics) Artifact(kind string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(kind).Inc()
}

// CacheHit counts a reused artifact.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// EntryFailure counts a skipped container entry.
func (m *Metrics) EntryFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// JobDone records a finished job.
func (m *Metrics) JobDone(format string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.jobs.WithLabelValues(format, status).Inc()
	m.duration.Observe(d.Seconds())
}

// WriteTextfile writes the metrics gathered by g to path, in the text exposition format.
// The file is replaced atomically, so that a node exporter never reads a partial file.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("could not create metrics directory: %v", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("could not write metrics textfile: %v", err)
	}
	return nil
}
