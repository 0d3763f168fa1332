// Package app provides top-level application lifecycle management for the
// debt-purchasing backend. It wires together all dependencies (stores, the
// indexer client, services, the sync engine, the archiver, and the HTTP
// server) and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/config"
)

// shutdownGrace is how long in-flight HTTP requests get to finish after the
// run context is cancelled.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP server plus the enabled
// background loops, and blocks until the context is cancelled or a component
// fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("store_driver", a.cfg.Store.Driver),
		slog.Bool("sync_enabled", a.cfg.Sync.Enabled),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	})

	if a.cfg.Sync.Enabled {
		g.Go(func() error {
			return deps.SyncEngine.Run(ctx, a.cfg.Sync.Interval.Duration)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunLoop(ctx, a.cfg.Archive.Interval.Duration)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
