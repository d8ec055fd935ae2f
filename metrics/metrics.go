// Package metrics provides Prometheus metrics export for the indexing
// pipeline and the query path.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports guidesearch metrics in Prometheus format.
// All observe methods are nil-safe so instrumentation can be optional.
type Exporter struct {
	registry *prometheus.Registry

	// Indexing run metrics
	runDuration      prometheus.Histogram
	runsTotal        *prometheus.CounterVec
	documentsIndexed prometheus.Counter
	guidesSkipped    *prometheus.CounterVec
	writeFailures    prometheus.Counter

	// Embedding metrics
	embeddingRetries prometheus.Counter

	// Search metrics
	searchRequests *prometheus.CounterVec
	searchLatency  *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "guidesearch",
		Name:      "index_run_duration_seconds",
		Help:      "Duration of full indexing runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
	e.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guidesearch",
		Name:      "index_runs_total",
		Help:      "Indexing runs by outcome.",
	}, []string{"status"})
	e.documentsIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "guidesearch",
		Name:      "index_documents_total",
		Help:      "Documents successfully written to the document store.",
	})
	e.guidesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guidesearch",
		Name:      "index_guides_skipped_total",
		Help:      "Guides dropped during assembly by failure kind.",
	}, []string{"reason"})
	e.writeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "guidesearch",
		Name:      "index_write_failures_total",
		Help:      "Per-document bulk write failures.",
	})
	e.embeddingRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "guidesearch",
		Name:      "embedding_retries_total",
		Help:      "Retries of transient embedding failures.",
	})
	e.searchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guidesearch",
		Name:      "search_requests_total",
		Help:      "Search requests by kind and status.",
	}, []string{"kind", "status"})
	e.searchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "guidesearch",
		Name:      "search_duration_seconds",
		Help:      "Search latency by kind.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"kind"})

	registry.MustRegister(
		e.runDuration,
		e.runsTotal,
		e.documentsIndexed,
		e.guidesSkipped,
		e.writeFailures,
		e.embeddingRetries,
		e.searchRequests,
		e.searchLatency,
	)

	return e
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) ObserveRun(duration time.Duration, succeeded bool) {
	if e == nil {
		return
	}
	e.runDuration.Observe(duration.Seconds())
	status := "ok"
	if !succeeded {
		status = "error"
	}
	e.runsTotal.WithLabelValues(status).Inc()
}

func (e *Exporter) AddDocumentsIndexed(n int) {
	if e == nil {
		return
	}
	e.documentsIndexed.Add(float64(n))
}

func (e *Exporter) AddGuideSkipped(reason string) {
	if e == nil {
		return
	}
	e.guidesSkipped.WithLabelValues(reason).Inc()
}

func (e *Exporter) AddWriteFailures(n int) {
	if e == nil {
		return
	}
	e.writeFailures.Add(float64(n))
}

func (e *Exporter) AddEmbeddingRetry() {
	if e == nil {
		return
	}
	e.embeddingRetries.Inc()
}

func (e *Exporter) ObserveSearch(kind string, duration time.Duration, err error) {
	if e == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.searchRequests.WithLabelValues(kind, status).Inc()
	e.searchLatency.WithLabelValues(kind).Observe(duration.Seconds())
}
