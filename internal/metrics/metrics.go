// Package metrics exposes Prometheus collectors for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rankdir"

// Metrics groups every collector the server records.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	flowOutcomes *prometheus.CounterVec
	queries      *prometheus.CounterVec
	cache        *prometheus.CounterVec
	sweptTotal   prometheus.Counter
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		flowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_flow_operations_total",
			Help:      "Authentication flow operations by outcome.",
		}, []string{"operation", "outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_queries_total",
			Help:      "Directory queries by outcome.",
		}, []string{"outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_cache_lookups_total",
			Help:      "Directory query cache lookups by result.",
		}, []string{"result"}),
		sweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_sessions_swept_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.flowOutcomes, m.queries, m.cache, m.sweptTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one finished request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// FlowOutcome records the result of an authentication flow operation
func (m *Metrics) FlowOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.flowOutcomes.WithLabelValues(operation, outcome).Inc()
}

// QueryOutcome records the result of a directory query
func (m *Metrics) QueryOutcome(outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
}

// CacheLookup records a cache hit, miss or error
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

// SessionsSwept records sessions removed by one sweep
func (m *Metrics) SessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTotal.Add(float64(n))
}
