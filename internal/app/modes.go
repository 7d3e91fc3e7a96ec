package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/escrowmarket/internal/server"
	"github.com/alanyoungcy/escrowmarket/internal/server/handler"
	"github.com/alanyoungcy/escrowmarket/internal/server/middleware"
	"github.com/alanyoungcy/escrowmarket/internal/server/ws"
)

// ServerMode runs the HTTP API and the websocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs the payable sweeper and, when enabled, the archiver.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API and the workers in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startWorkers(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer adds the websocket hub and the HTTP server to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, a.cfg.Server.CORSOrigins, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			Insecure: a.cfg.Server.InsecureAuth,
			MaxSkew:  a.cfg.Server.AuthMaxSkew.Duration,
		},
		RateLimit:  a.cfg.Server.RateLimit,
		RateWindow: a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Orders:  handler.NewOrderHandler(deps.Engine, a.logger),
		Account: handler.NewAccountHandler(deps.Engine, deps.Depositor, a.logger),
		Admin:   handler.NewAdminHandler(deps.Engine, a.logger),
	}, hub, deps.Limiter, a.logger)

	if a.cfg.Server.InsecureAuth {
		a.logger.WarnContext(ctx, "HTTP server: request signatures are NOT verified")
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startWorkers adds the payable sweeper and the archiver loops to g.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sweepEvery := a.cfg.Market.SweepInterval.Duration
	batch := a.cfg.Market.SweepBatch
	g.Go(func() error {
		runEvery(ctx, sweepEvery, func() {
			n, err := deps.Engine.SweepPayables(ctx, batch)
			if err != nil {
				a.logger.ErrorContext(ctx, "sweeper: run failed", slog.String("error", err.Error()))
				return
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "sweeper: delivered payables", slog.Int("count", n))
			}
		})
		return nil
	})

	if deps.Archiver == nil {
		a.logger.InfoContext(ctx, "archiver: disabled")
		return
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	g.Go(func() error {
		runEvery(ctx, a.cfg.Archive.Interval.Duration, func() {
			before := time.Now().UTC().Add(-retention)
			n, err := deps.Archiver.ArchiveClosedOrders(ctx, before)
			if err != nil {
				a.logger.ErrorContext(ctx, "archiver: run failed", slog.String("error", err.Error()))
				return
			}
			a.logger.InfoContext(ctx, "archiver: run complete",
				slog.Int64("orders", n),
				slog.Time("before", before),
			)
		})
		return nil
	})
}

// runEvery calls fn immediately and then on every tick until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
