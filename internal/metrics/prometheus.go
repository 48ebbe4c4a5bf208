// Package metrics provides Prometheus metrics for uploads, upserts, and searches.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "colindex"

// Recorder exports ingestion and query metrics in Prometheus format. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	// Upload metrics
	batches       *prometheus.CounterVec
	retries       prometheus.Counter
	batchDuration prometheus.Histogram

	// Store metrics
	pointsUpserted *prometheus.CounterVec
	pointsDeleted  *prometheus.CounterVec
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	collections    prometheus.Gauge
}

// Config configures the recorder.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}
}

// New creates a recorder and registers its collectors.
func New(cfg Config) *Recorder {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := &Recorder{registry: registry}

	r.batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "batches_total",
			Help:      "Upload batches by terminal status",
		},
		[]string{"status"},
	)
	r.retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "retries_total",
			Help:      "Batch submissions retried after a failure",
		},
	)
	r.batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "batch_duration_seconds",
			Help:      "Time from first submission to terminal status per batch",
			Buckets:   cfg.LatencyBuckets,
		},
	)
	r.pointsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "points_upserted_total",
			Help:      "Points inserted or replaced",
		},
		[]string{"collection"},
	)
	r.pointsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "points_deleted_total",
			Help:      "Points removed",
		},
		[]string{"collection"},
	)
	r.searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "searches_total",
			Help:      "Searches by outcome",
		},
		[]string{"collection", "status"},
	)
	r.searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"collection"},
	)
	r.collections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "collections",
			Help:      "Collections currently loaded",
		},
	)

	registry.MustRegister(
		r.batches,
		r.retries,
		r.batchDuration,
		r.pointsUpserted,
		r.pointsDeleted,
		r.searches,
		r.searchDuration,
		r.collections,
	)
	return r
}

// RecordBatch records a batch reaching a terminal status.
func (r *Recorder) RecordBatch(succeeded bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	status := "succeeded"
	if !succeeded {
		status = "failed"
	}
	r.batches.WithLabelValues(status).Inc()
	r.batchDuration.Observe(elapsed.Seconds())
}

// RecordRetry records one retried submission.
func (r *Recorder) RecordRetry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

// RecordUpsert records points written to a collection.
func (r *Recorder) RecordUpsert(collection string, n int) {
	if r == nil {
		return
	}
	r.pointsUpserted.WithLabelValues(collection).Add(float64(n))
}

// RecordDelete records points removed from a collection.
func (r *Recorder) RecordDelete(collection string, n int) {
	if r == nil {
		return
	}
	r.pointsDeleted.WithLabelValues(collection).Add(float64(n))
}

// RecordSearch records one search and its latency.
func (r *Recorder) RecordSearch(collection string, latency time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.searches.WithLabelValues(collection, status).Inc()
	r.searchDuration.WithLabelValues(collection).Observe(latency.Seconds())
}

// SetCollections sets the number of loaded collections.
func (r *Recorder) SetCollections(n int) {
	if r == nil {
		return
	}
	r.collections.Set(float64(n))
}

// Handler returns an HTTP handler serving the registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}
