// Package metrics provides Prometheus instrumentation for the RWA engine.
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

var (
	// OperationLatency tracks committed ledger operations by name.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rwa_operation_latency_seconds",
		Help:    "Latency of committed ledger operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// Rejections counts operations that failed, by operation and error kind.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rwa_rejections_total",
		Help: "Ledger operations rejected",
	}, []string{"op", "kind"})

	// EventsTotal counts committed events by kind.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rwa_events_total",
		Help: "Committed ledger events",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rwa_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rwa_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rwa_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// FeedFetches counts off-chain price fetches by platform and outcome.
	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rwa_feed_fetches_total",
		Help: "Platform price fetches",
	}, []string{"platform", "outcome"})

	// ArchiveUploads counts event archive uploads by outcome.
	ArchiveUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rwa_archive_uploads_total",
		Help: "Event archive uploads",
	}, []string{"outcome"})

	// PendingPriceRequests tracks cross-platform requests awaiting fulfillment.
	PendingPriceRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rwa_pending_price_requests",
		Help: "Cross-platform price requests not yet complete",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern, not raw path, to bound cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
