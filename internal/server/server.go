// Package server exposes the HTTP API for the order book: order admission
// and listing, position and health-factor queries, and the manual sync
// trigger.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/server/handler"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Sync      *handler.SyncHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and the middleware chain.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness (no auth required by convention; auth middleware still
	// applies when configured).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Order endpoints. The mux prefers the literal "active" segment over
	// the "{id}" wildcard.
	mux.HandleFunc("POST /api/orders", handlers.Orders.CreateOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/orders/active", handlers.Orders.ListActiveOrders)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{address}", handlers.Positions.GetPosition)
	mux.HandleFunc("GET /api/positions/{address}/health", handlers.Positions.GetHealthFactor)

	// Sync control.
	mux.HandleFunc("POST /api/sync/trigger", handlers.Sync.TriggerSync)
	mux.HandleFunc("GET /api/sync/status", handlers.Sync.SyncStatus)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. No configured
// origins means allow all.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
