// Package metrics exposes Prometheus collectors for the pool manager and the
// HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reconfiguration outcomes used as the "result" label.
const (
	ResultSuccess    = "success"
	ResultValidation = "validation_error"
	ResultConnection = "connection_error"
	ResultSchema     = "schema_error"
	ResultClosed     = "closed"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	reconfigurations *prometheus.CounterVec
	activePool       prometheus.Gauge
	retiredCloses    *prometheus.CounterVec
	requests         *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reconfigurations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relicmart_reconfigurations_total",
			Help: "Database reconfiguration attempts by outcome.",
		}, []string{"result"}),
		activePool: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relicmart_active_pool",
			Help: "1 while a database configuration is active.",
		}),
		retiredCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relicmart_retired_pool_closes_total",
			Help: "Retired pools closed after a swap, by outcome.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relicmart_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relicmart_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.reconfigurations, m.activePool, m.retiredCloses, m.requests, m.latency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Reconfigured counts one reconfiguration attempt.
func (m *Metrics) Reconfigured(result string) {
	if m == nil {
		return
	}
	m.reconfigurations.WithLabelValues(result).Inc()
}

// SetActive flips the active-pool gauge.
func (m *Metrics) SetActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.activePool.Set(1)
	} else {
		m.activePool.Set(0)
	}
}

// RetiredClosed counts one background close of a superseded pool.
func (m *Metrics) RetiredClosed(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.retiredCloses.WithLabelValues(result).Inc()
}

// Middleware records request count and latency keyed by chi route pattern,
// so /items/1 and /items/2 share a series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
