// Package metrics provides Prometheus instrumentation for the pricing engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnknownLabel replaces caller-supplied codes that are not in the live rate
// table, keeping label cardinality bounded by the reference data.
const UnknownLabel = "unknown"

var (
	// QuotesTotal counts single quotes, partitioned by subcategory and outcome code.
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_quotes_total",
		Help: "Total single-underwriter quotes priced",
	}, []string{"subcategory", "code"})

	// ComparisonsTotal counts comparisons by outcome (ok, partial, no_quotes, canceled).
	ComparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_comparisons_total",
		Help: "Total comparisons executed",
	}, []string{"outcome"})

	// ComparisonLatency tracks wall time of a comparison from dispatch to ranking.
	ComparisonLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_comparison_latency_seconds",
		Help:    "Comparison latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	})

	// UnderwriterFailures counts per-underwriter failures inside comparisons.
	UnderwriterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_underwriter_failures_total",
		Help: "Underwriters that could not be priced within a comparison",
	}, []string{"underwriter", "code"})

	// RateReloads counts rate table reload attempts by trigger and result.
	RateReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_rate_reloads_total",
		Help: "Rate table reload attempts",
	}, []string{"trigger", "result"})

	// RateRules reports the number of rules in the live snapshot.
	RateRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricing_rate_rules",
		Help: "Rate rules in the current rate table snapshot",
	})

	// EventsPublishFailures counts quote events that could not be delivered.
	EventsPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_events_publish_failures_total",
		Help: "Quote events dropped because the publisher failed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricing_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricing_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := RoutePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RoutePattern returns the chi route pattern for r, falling back to the raw
// path outside a chi router. Patterns keep label cardinality bounded.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets the websocket upgrader take over connections that pass
// through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
