package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pricesync/internal/pipeline"
	"github.com/alanyoungcy/pricesync/internal/ratelimit"
	"github.com/alanyoungcy/pricesync/internal/server"
	"github.com/alanyoungcy/pricesync/internal/server/handler"
	"github.com/alanyoungcy/pricesync/internal/server/ws"
	"github.com/alanyoungcy/pricesync/internal/service"
)

const shutdownTimeout = 10 * time.Second

// newScheduler builds the guarded sync task shared by every mode.
func (a *App) newScheduler(deps *Dependencies) *pipeline.Scheduler {
	opts := []service.PriceSyncOption{
		service.WithUpdateBus(deps.Bus),
		service.WithSyncObserver(deps.Metrics),
	}
	if deps.Cache != nil {
		opts = append(opts, service.WithAssetCache(deps.Cache))
	}
	task := service.NewPriceSync(deps.Assets, deps.Source, service.PriceSyncConfig{
		ExternalIDs: a.cfg.Sync.ExternalIDs,
		Concurrency: a.cfg.Sync.Concurrency,
	}, a.logger, opts...)

	limiter := ratelimit.New(deps.WindowLog, a.logger, ratelimit.WithObserver(deps.Metrics))

	schedOpts := []pipeline.SchedulerOption{pipeline.WithNotifier(deps.Notifier)}
	if deps.Blob != nil {
		schedOpts = append(schedOpts, pipeline.WithArchiver(
			pipeline.NewSnapshotArchiver(deps.Assets, deps.Blob, a.cfg.S3.Prefix, a.logger),
		))
	}

	return pipeline.NewScheduler(task, limiter, pipeline.SchedulerConfig{
		Cron: a.cfg.Sync.Cron,
		Limit: ratelimit.Config{
			Key:         a.cfg.Sync.OperationKey,
			MaxRequests: a.cfg.Sync.MaxRequests,
			Window:      a.cfg.Sync.Window.Duration,
		},
		Timeout:    a.cfg.Sync.Timeout.Duration,
		RunOnStart: a.cfg.Sync.RunOnStart,
	}, a.logger, schedOpts...)
}

// WorkerMode runs the cron scheduler. The HTTP server is started as well when
// server.enabled is set, for metrics and manual triggers.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	sched := a.newScheduler(deps)
	g.Go(func() error {
		return sched.Start(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sched)
	}
	return g.Wait()
}

// ServerMode serves the API only. Manual triggers still go through the
// shared limiter.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.newScheduler(deps))
	return g.Wait()
}

// FullMode runs the scheduler and the API server together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	sched := a.newScheduler(deps)
	g.Go(func() error {
		return sched.Start(ctx)
	})
	a.startHTTPServer(ctx, g, deps, sched)
	return g.Wait()
}

// OnceMode runs a single guarded pass and returns its error.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	report, err := a.newScheduler(deps).Trigger(ctx)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}
	a.logger.InfoContext(ctx, "sync pass complete",
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("unmapped", report.Unmapped),
		slog.Duration("duration", report.Duration),
	)
	return nil
}

// startHTTPServer registers the API, the websocket hub and the metrics
// endpoint, and stops the server when ctx is done.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sched *pipeline.Scheduler) {
	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	assetSvc := service.NewAssetService(deps.Assets, deps.Cache, a.logger)
	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(deps.Checks, a.logger),
		Assets:     handler.NewAssetHandler(assetSvc, a.logger),
		Hub:        hub,
		Metrics:    deps.Metrics.Handler(),
		Instrument: deps.Metrics.InstrumentHandler,
	}
	if sched != nil {
		handlers.Sync = handler.NewSyncHandler(sched, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
		Burst:             a.cfg.Server.Burst,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
