package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	layerUpdatesTotal   *prometheus.CounterVec
	layerUpdateDuration prometheus.Histogram
	queriesTotal        *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
}

// New creates a fresh Metrics registry with HTTP, layer update and query
// metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neomap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by neomap",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "neomap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by neomap",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	layerUpdatesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neomap",
		Name:      "layer_updates_total",
		Help:      "Layer updates by outcome (ok, error, superseded)",
	}, []string{"outcome"})

	layerUpdateDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "neomap",
		Name:      "layer_update_duration_seconds",
		Help:      "Duration of layer updates from trigger to applied state",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	queriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neomap",
		Name:      "graph_queries_total",
		Help:      "Graph queries executed for layers, by kind and status",
	}, []string{"kind", "status"})

	queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "neomap",
		Name:      "graph_query_duration_seconds",
		Help:      "Duration of graph queries executed for layers",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		layerUpdatesTotal,
		layerUpdateDuration,
		queriesTotal,
		queryDuration,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		layerUpdatesTotal:   layerUpdatesTotal,
		layerUpdateDuration: layerUpdateDuration,
		queriesTotal:        queriesTotal,
		queryDuration:       queryDuration,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveLayerUpdate records one finished layer update.
func (m *Metrics) ObserveLayerUpdate(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.layerUpdatesTotal.WithLabelValues(outcome).Inc()
	m.layerUpdateDuration.Observe(duration.Seconds())
}

// ObserveQuery records one graph query.
func (m *Metrics) ObserveQuery(kind string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.queriesTotal.WithLabelValues(kind, status).Inc()
	m.queryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
