// Package server exposes the settlement engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/server/handler"
	"github.com/predictify/engine/internal/server/middleware"
	"github.com/predictify/engine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AuthEnabled turns request signature verification on. When false the
	// claimed caller address is trusted (development only).
	AuthEnabled bool
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Votes      *handler.VoteHandler
	Resolution *handler.ResolutionHandler
	Disputes   *handler.DisputeHandler
	Fees       *handler.FeeHandler
	Admin      *handler.AdminHandler
	Events     *handler.EventHandler
}

// Server is the HTTP + WebSocket API server for the settlement engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil
// to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Markets.CancelMarket)
	mux.HandleFunc("POST /api/markets/{id}/extend", handlers.Markets.ExtendMarket)
	mux.HandleFunc("GET /api/markets/{id}/extensions", handlers.Markets.ListExtensions)
	mux.HandleFunc("GET /api/markets/{id}/analytics", handlers.Markets.Analytics)

	// Staking and payouts.
	mux.HandleFunc("POST /api/markets/{id}/vote", handlers.Votes.Vote)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Votes.Claim)

	// Oracle and resolution.
	mux.HandleFunc("POST /api/markets/{id}/oracle-result", handlers.Resolution.FetchOracleResult)
	mux.HandleFunc("GET /api/markets/{id}/oracle-resolution", handlers.Resolution.GetOracleResult)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Resolution.Resolve)
	mux.HandleFunc("GET /api/markets/{id}/resolution", handlers.Resolution.GetResolution)

	// Disputes.
	mux.HandleFunc("POST /api/markets/{id}/dispute", handlers.Disputes.Open)
	mux.HandleFunc("POST /api/markets/{id}/dispute/vote", handlers.Disputes.Vote)
	mux.HandleFunc("POST /api/markets/{id}/dispute/escalate", handlers.Disputes.Escalate)
	mux.HandleFunc("POST /api/markets/{id}/dispute/resolve", handlers.Disputes.Resolve)
	mux.HandleFunc("GET /api/markets/{id}/disputes", handlers.Disputes.Stats)

	// Fees.
	mux.HandleFunc("POST /api/markets/{id}/fees/collect", handlers.Fees.Collect)
	mux.HandleFunc("GET /api/markets/{id}/fees", handlers.Fees.Fees)
	mux.HandleFunc("GET /api/fees/total", handlers.Fees.TotalCollected)

	// System configuration.
	mux.HandleFunc("POST /api/admin/bootstrap", handlers.Admin.Bootstrap)
	mux.HandleFunc("GET /api/admin/config", handlers.Admin.Config)
	mux.HandleFunc("PUT /api/admin", handlers.Admin.UpdateAdmin)
	mux.HandleFunc("PUT /api/admin/fees", handlers.Admin.UpdateFees)

	// Event history.
	mux.HandleFunc("GET /api/events", handlers.Events.List)

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware chain, innermost first: logging sees the final status,
	// rate limiting and auth run before it so the caller is attached.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter)(h)
	}
	h = middleware.SignatureAuth(cfg.AuthEnabled)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
