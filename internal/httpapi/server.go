// Package httpapi exposes the payment service over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"paygate/internal/observability"
	"paygate/internal/payments"
	"paygate/internal/realtime"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Config wires the handler's dependencies.
type Config struct {
	Service *payments.Service
	Hub     *realtime.Hub
	Metrics *observability.Metrics
	Limiter *RateLimiter
	Logger  zerolog.Logger
	Health  map[string]HealthCheck
}

type server struct {
	service  *payments.Service
	hub      *realtime.Hub
	metrics  *observability.Metrics
	logger   zerolog.Logger
	health   map[string]HealthCheck
	upgrader websocket.Upgrader
}

// New builds the full HTTP handler: payment routes, health, metrics, the
// WebSocket feed, and the logging, CORS and rate-limit middleware around
// them.
func New(cfg Config) http.Handler {
	s := &server{
		service: cfg.Service,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		health:  cfg.Health,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.Handle("POST /payments", s.track("POST /payments", s.createPayment))
	mux.Handle("GET /payments", s.track("GET /payments", s.listPayments))
	mux.Handle("GET /payments/{id}", s.track("GET /payments/{id}", s.getPayment))
	mux.Handle("POST /payments/{id}/retry", s.track("POST /payments/{id}/retry", s.retryPayment))
	mux.HandleFunc("GET /health", s.healthCheck)
	mux.Handle("GET /metrics", observability.Handler(cfg.Metrics))
	mux.HandleFunc("GET /ws/payments", s.serveWS)

	var handler http.Handler = mux
	handler = RateLimit(cfg.Limiter)(handler)
	handler = cors.AllowAll().Handler(handler)
	handler = RequestLogger(cfg.Logger)(handler)
	return handler
}

// track records per-operation metrics for a payment route.
func (s *server) track(operation string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := s.metrics.Start(operation)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		span.End(statusErr(rec.status))
	})
}

func statusErr(status int) error {
	if status >= http.StatusBadRequest {
		return fmt.Errorf("status %d", status)
	}
	return nil
}
