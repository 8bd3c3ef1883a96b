// Package metrics provides Prometheus instrumentation for the game engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts market ticks processed.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "levsim_ticks_total",
		Help: "Total number of market ticks processed",
	})

	// TradesTotal counts opened positions, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "levsim_trades_total",
		Help: "Total number of positions opened",
	}, []string{"side"})

	// ClosesTotal counts closed positions, partitioned by cause
	// (manual, stop_loss, liquidation).
	ClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "levsim_closes_total",
		Help: "Total number of positions closed",
	}, []string{"cause"})

	// LiquidationsTotal counts forced liquidations.
	LiquidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "levsim_liquidations_total",
		Help: "Total number of liquidations",
	})

	// EventsAppliedTotal counts scripted market events applied.
	EventsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "levsim_events_applied_total",
		Help: "Total number of scripted market events applied",
	})

	// PlayerBalance tracks the current player balance.
	PlayerBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "levsim_player_balance",
		Help: "Current player balance",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "levsim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "levsim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "levsim_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
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
