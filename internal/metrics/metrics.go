// Package metrics exposes operational Prometheus metrics for evaluation runs.
//
// A Collector owns its own registry, so several collectors can live in one
// process (and in tests) without clashing on the default registry.
//
// Usage:
//
//	c := metrics.NewCollector("qdrant/hash-256")
//	h := evaluation.NewHarness(backend, evaluation.WithObserver(c))
//	...
//	c.RecordReport(report)
//	_ = c.WriteTextfile("/var/lib/node_exporter/rice_eval.prom")
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ricesearch/rice-eval/internal/evaluation"
)

const namespace = "rice_eval"

// Collector records per-query, cache, bus and HTTP metrics.
type Collector struct {
	registry *prometheus.Registry

	// Queries counts scenario queries.
	// Labels: result (hit|miss|error)
	Queries *prometheus.CounterVec

	// QueryErrors counts failed queries by error code.
	// Labels: code (QUERY_TIMEOUT|INTERNAL_ERROR|...)
	QueryErrors *prometheus.CounterVec

	// RetrievalLatency measures Retrieve latency in seconds.
	RetrievalLatency prometheus.Histogram

	// MetricValue holds the latest report values.
	// Labels: metric, k
	MetricValue *prometheus.GaugeVec

	// IndexedDocuments is the corpus size of the latest run.
	IndexedDocuments prometheus.Gauge

	// Cache metrics.
	// Labels: type (embed)
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Bus metrics.
	// Labels: topic, status (success|error)
	BusPublished  *prometheus.CounterVec
	BusPublishLag *prometheus.HistogramVec

	// HTTP metrics for the serve command.
	// Labels: code, method
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
}

// NewCollector creates a collector whose metrics carry a constant backend
// label.
func NewCollector(backend string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"backend": backend}

	return &Collector{
		registry: reg,

		Queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "queries_total",
				Help:        "Total number of scenario queries by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),

		QueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "query_errors_total",
				Help:        "Total number of failed scenario queries by error code",
				ConstLabels: constLabels,
			},
			[]string{"code"},
		),

		RetrievalLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "retrieval_duration_seconds",
				Help:        "Duration of backend Retrieve calls in seconds",
				Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
				ConstLabels: constLabels,
			},
		),

		MetricValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "metric_value",
				Help:        "Latest retrieval quality metric value by metric and cutoff",
				ConstLabels: constLabels,
			},
			[]string{"metric", "k"},
		),

		IndexedDocuments: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "indexed_documents",
				Help:        "Number of documents indexed for the latest run",
				ConstLabels: constLabels,
			},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "cache_hits_total",
				Help:        "Total number of cache hits by cache type",
				ConstLabels: constLabels,
			},
			[]string{"type"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "cache_misses_total",
				Help:        "Total number of cache misses by cache type",
				ConstLabels: constLabels,
			},
			[]string{"type"},
		),

		BusPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "bus_events_published_total",
				Help:        "Total number of published bus events by topic and status",
				ConstLabels: constLabels,
			},
			[]string{"topic", "status"},
		),

		BusPublishLag: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "bus_publish_duration_seconds",
				Help:        "Duration of bus publish calls in seconds",
				Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
				ConstLabels: constLabels,
			},
			[]string{"topic"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests by status code and method",
				ConstLabels: constLabels,
			},
			[]string{"code", "method"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests in seconds",
				Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
				ConstLabels: constLabels,
			},
			[]string{"code", "method"},
		),

		HTTPInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being served",
				ConstLabels: constLabels,
			},
		),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveQuery implements evaluation.Observer.
func (c *Collector) ObserveQuery(o evaluation.Outcome) {
	c.RetrievalLatency.Observe(o.Latency.Seconds())

	switch {
	case o.Error != "":
		c.Queries.WithLabelValues("error").Inc()
		c.QueryErrors.WithLabelValues(o.Error).Inc()
	case o.Rank == 0:
		c.Queries.WithLabelValues("miss").Inc()
	default:
		c.Queries.WithLabelValues("hit").Inc()
	}
}

// RecordReport publishes every metric@k of r as a gauge.
func (c *Collector) RecordReport(r *evaluation.Report) {
	if r == nil {
		return
	}
	for _, m := range evaluation.AllMetrics() {
		for _, k := range r.Cutoffs {
			c.MetricValue.WithLabelValues(string(m), strconv.Itoa(k)).Set(r.Value(m, k))
		}
	}
}

// SetIndexedDocuments records the corpus size.
func (c *Collector) SetIndexedDocuments(n int) {
	c.IndexedDocuments.Set(float64(n))
}

// RecordCacheHit implements embed.CacheMetrics.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss implements embed.CacheMetrics.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordBusPublish implements bus.MetricsRecorder.
func (c *Collector) RecordBusPublish(topic string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.BusPublished.WithLabelValues(topic, status).Inc()
	c.BusPublishLag.WithLabelValues(topic).Observe(latency.Seconds())
}

// WriteTextfile writes every metric to path in the text exposition format,
// for the node_exporter textfile collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

var _ evaluation.Observer = (*Collector)(nil)
