// Package app provides the top-level application lifecycle for the
// settlement service. It wires together stores, caches, the oracle client,
// blob storage, services, and the HTTP server, and runs them until the
// context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pitchside/parimutuel/internal/config"
	"github.com/pitchside/parimutuel/internal/server"
	"github.com/pitchside/parimutuel/internal/server/handler"
	"github.com/pitchside/parimutuel/internal/server/ws"
	"github.com/pitchside/parimutuel/internal/service"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, builds the
// services and HTTP server, and blocks until the context is cancelled or a
// component fails. On return the caller should invoke Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("report_archival", a.cfg.S3.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Build services.
	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.Escrow, deps.LockManager, deps.AuditStore, a.logger,
	)
	bettingSvc := service.NewBettingService(
		deps.MarketStore, deps.PositionStore, deps.BetLedger, deps.Escrow,
		deps.LockManager, deps.SignalBus, deps.AuditStore, a.logger,
	)
	resolutionSvc := service.NewResolutionService(
		deps.MarketStore, deps.PositionStore, deps.Oracle, deps.LockManager,
		deps.MarketCache, deps.SignalBus, deps.AuditStore, deps.Archiver, a.logger,
	)
	settlementSvc := service.NewSettlementService(
		deps.MarketStore, deps.PositionStore, deps.Escrow, deps.LockManager,
		deps.MarketCache, deps.SignalBus, deps.AuditStore, a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, a.logger)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.ApiKey,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(a.logger),
			Markets:    handler.NewMarketHandler(marketSvc, a.logger),
			Bets:       handler.NewBetHandler(bettingSvc, a.logger),
			Settlement: handler.NewSettlementHandler(resolutionSvc, settlementSvc, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
