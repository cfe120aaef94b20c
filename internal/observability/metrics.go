package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	operationTotal    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	searchDuration prometheus.Histogram
	embedDuration  prometheus.Histogram
	memoryEntries  prometheus.Gauge
	modelReady     prometheus.Gauge

	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			operationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_operation_total",
					Help: "Total memory store operations by operation and status.",
				},
				[]string{"operation", "status"},
			),
			operationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_operation_duration_seconds",
					Help:    "Memory store operation duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Similarity search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			embedDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "embedding_duration_seconds",
					Help:    "Embedding generation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryEntries: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries_total",
					Help: "Total memory records stored.",
				},
			),
			modelReady: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "embedding_model_ready",
					Help: "Embedding model readiness (1 ready, 0 otherwise).",
				},
			),
			httpRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_request_total",
					Help: "Total HTTP API requests by path, method and status code.",
				},
				[]string{"path", "method", "status"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP API request duration in seconds by path.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"path"},
			),
		}

		prometheus.MustRegister(
			m.operationTotal,
			m.operationDuration,
			m.searchDuration,
			m.embedDuration,
			m.memoryEntries,
			m.modelReady,
			m.httpRequestTotal,
			m.httpRequestDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the prometheus scrape handler.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordOperation records one store operation with its outcome.
func RecordOperation(operation, status string, duration time.Duration) {
	m := getMetrics()
	m.operationTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordMemorySearch(duration time.Duration) {
	getMetrics().searchDuration.Observe(duration.Seconds())
}

func RecordEmbedding(duration time.Duration) {
	getMetrics().embedDuration.Observe(duration.Seconds())
}

func SetMemoryEntries(total int) {
	getMetrics().memoryEntries.Set(float64(total))
}

func SetModelReady(ready bool) {
	v := 0.0
	if ready {
		v = 1.0
	}
	getMetrics().modelReady.Set(v)
}

func RecordHTTPRequest(path, method string, status int, duration time.Duration) {
	m := getMetrics()
	m.httpRequestTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}
