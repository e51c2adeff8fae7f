// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors on a private registry so tests can
// create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	queriesTotal  *prometheus.CounterVec
	queryDuration prometheus.Histogram

	gatewaysCreatedTotal prometheus.Counter
}

// New creates and registers all gateway metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimade_gateway_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optimade_gateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		upstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimade_gateway_upstream_requests_total",
			Help: "Total number of requests sent to upstream databases",
		}, []string{"database", "outcome"}),
		upstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optimade_gateway_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
		}, []string{"database"}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimade_gateway_queries_total",
			Help: "Total number of federated queries executed",
		}, []string{"endpoint"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "optimade_gateway_query_duration_seconds",
			Help:    "Federated query duration in seconds, fan-out to merge",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
		}),
		gatewaysCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimade_gateway_gateways_created_total",
			Help: "Total number of gateway records created",
		}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamRequestDuration,
		m.queriesTotal,
		m.queryDuration,
		m.gatewaysCreatedTotal,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one upstream fetch.
func (m *Metrics) ObserveUpstream(database, outcome string, duration time.Duration) {
	m.upstreamRequestsTotal.WithLabelValues(database, outcome).Inc()
	m.upstreamRequestDuration.WithLabelValues(database).Observe(duration.Seconds())
}

// ObserveQuery records one completed federated query.
func (m *Metrics) ObserveQuery(endpoint string, duration time.Duration) {
	m.queriesTotal.WithLabelValues(endpoint).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

// GatewayCreated records a newly interned gateway.
func (m *Metrics) GatewayCreated() {
	m.gatewaysCreatedTotal.Inc()
}

// Middleware returns HTTP middleware that records request counts and
// durations with normalized paths.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// normalizePath collapses record ids into placeholders so metric cardinality
// stays bounded.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		switch segments[i-1] {
		case "gateways", "queries", "databases":
			segments[i] = "{id}"
		case "structures":
			// Single-entry lookups carry a "{db_id}/{entry_id}" suffix.
			segments[i] = "{db_id}"
			if i+1 < len(segments) {
				segments[i+1] = "{entry_id}"
			}
		}
	}
	return strings.Join(segments, "/")
}
