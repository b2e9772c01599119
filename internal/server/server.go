// Package server exposes the settlement engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/server/handler"
	"github.com/openmatch/nftx/internal/server/middleware"
	"github.com/openmatch/nftx/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per RateWindow per client IP; zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archives is optional; nil leaves the export routes unregistered.
type Handlers struct {
	Health      *handler.HealthHandler
	Orders      *handler.OrderHandler
	Settlements *handler.SettlementHandler
	Fees        *handler.FeeHandler
	Archives    *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the exchange.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limiting, auth) wired in front.
// limiter may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Order endpoints.
	mux.HandleFunc("POST /api/orders/verify", handlers.Orders.VerifyOrder)
	mux.HandleFunc("POST /api/orders/cancel", handlers.Orders.CancelOrders)
	mux.HandleFunc("POST /api/orders/cancel-all", handlers.Orders.CancelAllOrders)
	mux.HandleFunc("GET /api/nonces/{signer}/{nonce}", handlers.Orders.GetNonce)

	// Settlement endpoints.
	mux.HandleFunc("POST /api/settlements/take", handlers.Settlements.TakeOrders)
	mux.HandleFunc("POST /api/settlements/match", handlers.Settlements.MatchOrders)
	mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListSettlements)
	mux.HandleFunc("GET /api/settlements/{id}", handlers.Settlements.GetSettlement)

	// Fee and treasury endpoints.
	mux.HandleFunc("GET /api/fees/balance", handlers.Fees.GetBalance)
	mux.HandleFunc("POST /api/fees/claim", handlers.Fees.Claim)
	mux.HandleFunc("POST /api/fees/schedule", handlers.Fees.UpdateSchedule)
	mux.HandleFunc("GET /api/collections/{collection}/fee-split", handlers.Fees.GetFeeSplit)
	mux.HandleFunc("POST /api/collections/{collection}/fee-split", handlers.Fees.SetupFeeSplit)

	// Settlement export endpoints, present only with blob storage enabled.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{month}", handlers.Archives.ExportMonth)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
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

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
