package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/server/handler"
	"github.com/alanyoungcy/escrowmarket/internal/server/middleware"
	"github.com/alanyoungcy/escrowmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	Auth        middleware.AuthConfig

	// RateLimit requests per RateWindow per client; zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Orders  *handler.OrderHandler
	Account *handler.AccountHandler
	Admin   *handler.AdminHandler
}

// Server is the HTTP + WebSocket API of the marketplace.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in
// CORS, logging, authentication and rate limiting, outermost first.
// limiter may be nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Orders.
	mux.HandleFunc("GET /api/orders", h.Orders.List)
	mux.HandleFunc("GET /api/orders/{id}", h.Orders.Get)
	mux.HandleFunc("POST /api/orders/fixed-price", h.Orders.Create(domain.OrderKindFixedPrice))
	mux.HandleFunc("POST /api/orders/fixed-price/batch", h.Orders.CreateBatch(domain.OrderKindFixedPrice))
	mux.HandleFunc("POST /api/orders/auction", h.Orders.Create(domain.OrderKindAuction))
	mux.HandleFunc("POST /api/orders/auction/batch", h.Orders.CreateBatch(domain.OrderKindAuction))
	mux.HandleFunc("GET /api/orders/{id}/bids", h.Orders.Bids)
	mux.HandleFunc("POST /api/orders/{id}/bids", h.Orders.PlaceBid)
	mux.HandleFunc("POST /api/orders/{id}/buy", h.Orders.Buy)
	mux.HandleFunc("POST /api/orders/{id}/finalize", h.Orders.Finalize)
	mux.HandleFunc("DELETE /api/orders/{id}", h.Orders.Cancel)
	mux.HandleFunc("POST /api/orders/cancel", h.Orders.CancelBatch)
	mux.HandleFunc("POST /api/orders/finalize", h.Orders.FinalizeBatch)

	// Account.
	mux.HandleFunc("GET /api/account/balances", h.Account.Balances)
	mux.HandleFunc("POST /api/account/withdraw", h.Account.Withdraw)

	// Settings and administration.
	mux.HandleFunc("GET /api/settings", h.Admin.Settings)
	mux.HandleFunc("GET /api/media", h.Admin.Media)
	mux.HandleFunc("POST /api/admin/pause", h.Admin.Pause)
	mux.HandleFunc("POST /api/admin/unpause", h.Admin.Unpause)
	mux.HandleFunc("PUT /api/admin/bidding-duration", h.Admin.SetBiddingDuration)
	mux.HandleFunc("PUT /api/admin/media", h.Admin.SetMedium)
	mux.HandleFunc("POST /api/admin/reap", h.Admin.Reap)
	mux.HandleFunc("POST /api/admin/deposits", h.Account.Deposit)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var root http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(root)
	}
	root = middleware.Auth(cfg.Auth)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
