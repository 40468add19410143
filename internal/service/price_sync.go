package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// Per-asset outcomes of a sync pass.
const (
	AssetUpdated  = "updated"
	AssetSkipped  = "skipped"
	AssetUnmapped = "unmapped"
	AssetFailed   = "failed"
)

// Sync run results.
const (
	RunSuccess = "success"
	RunFailure = "failure"
)

// SyncReport summarizes one pass.
type SyncReport struct {
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Unmapped int           `json:"unmapped"`
	Duration time.Duration `json:"duration"`
}

// SyncObserver receives pass and per-asset outcomes.
type SyncObserver interface {
	ObserveSyncRun(result string, d time.Duration)
	ObserveAssetOutcome(outcome string)
}

type nopSyncObserver struct{}

func (nopSyncObserver) ObserveSyncRun(string, time.Duration) {}
func (nopSyncObserver) ObserveAssetOutcome(string)           {}

// PriceSyncConfig tunes a PriceSync.
type PriceSyncConfig struct {
	// ExternalIDs maps symbols to price-source ids for assets that do not
	// store one.
	ExternalIDs map[string]string
	// Concurrency bounds in-flight assets. Values below 1 mean 1.
	Concurrency int
}

// PriceSync refreshes price statistics for every tracked asset.
type PriceSync struct {
	assets      domain.AssetStore
	source      domain.PriceSource
	cache       domain.AssetCache
	bus         domain.UpdateBus
	observer    SyncObserver
	externalIDs map[string]string
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// PriceSyncOption configures optional collaborators.
type PriceSyncOption func(*PriceSync)

// WithAssetCache invalidates cached entries after each commit.
func WithAssetCache(c domain.AssetCache) PriceSyncOption {
	return func(s *PriceSync) { s.cache = c }
}

// WithUpdateBus publishes an AssetUpdated event after each commit.
func WithUpdateBus(b domain.UpdateBus) PriceSyncOption {
	return func(s *PriceSync) { s.bus = b }
}

// WithSyncObserver records outcomes.
func WithSyncObserver(o SyncObserver) PriceSyncOption {
	return func(s *PriceSync) { s.observer = o }
}

// WithSyncClock overrides the wall clock.
func WithSyncClock(now func() time.Time) PriceSyncOption {
	return func(s *PriceSync) { s.now = now }
}

// NewPriceSync creates a PriceSync.
func NewPriceSync(
	assets domain.AssetStore,
	source domain.PriceSource,
	cfg PriceSyncConfig,
	logger *slog.Logger,
	opts ...PriceSyncOption,
) *PriceSync {
	if logger == nil {
		logger = slog.Default()
	}
	ids := make(map[string]string, len(cfg.ExternalIDs))
	for k, v := range cfg.ExternalIDs {
		ids[k] = v
	}
	s := &PriceSync{
		assets:      assets,
		source:      source,
		observer:    nopSyncObserver{},
		externalIDs: ids,
		concurrency: max(cfg.Concurrency, 1),
		now:         time.Now,
		logger:      logger.With(slog.String("component", "price_sync")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveExternalID returns the asset's stored id, else the configured one.
func (s *PriceSync) ResolveExternalID(a domain.TrackedAsset) string {
	if a.ExternalID != "" {
		return a.ExternalID
	}
	return s.externalIDs[a.Symbol]
}

// Run performs one pass over all assets in listing order. The first price
// source or repository error aborts the pass; assets committed before it
// keep their updates.
func (s *PriceSync) Run(ctx context.Context) (SyncReport, error) {
	start := s.now()
	report, err := s.run(ctx, start)
	report.Duration = s.now().Sub(start)

	if err != nil {
		s.observer.ObserveSyncRun(RunFailure, report.Duration)
		s.logger.ErrorContext(ctx, "sync pass aborted",
			slog.Int("updated", report.Updated),
			slog.String("error", err.Error()),
		)
		return report, err
	}
	s.observer.ObserveSyncRun(RunSuccess, report.Duration)
	s.logger.InfoContext(ctx, "sync pass completed",
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("unmapped", report.Unmapped),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *PriceSync) run(ctx context.Context, start time.Time) (SyncReport, error) {
	assets, err := s.assets.List(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("price_sync: list assets: %w", err)
	}

	now := start.Unix()
	chartStart := time.Unix(now-daySeconds, 0)

	var (
		mu     sync.Mutex
		report SyncReport
	)
	count := func(outcome string) {
		s.observer.ObserveAssetOutcome(outcome)
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case AssetUpdated:
			report.Updated++
		case AssetSkipped:
			report.Skipped++
		case AssetUnmapped:
			report.Unmapped++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, a := range assets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome, err := s.syncAsset(gctx, a, now, chartStart)
			count(outcome)
			return err
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return report, err
}

func (s *PriceSync) syncAsset(ctx context.Context, a domain.TrackedAsset, now int64, chartStart time.Time) (string, error) {
	log := s.logger.With(slog.String("symbol", a.Symbol))

	externalID := s.ResolveExternalID(a)
	if externalID == "" {
		log.WarnContext(ctx, "no external id configured, skipping")
		return AssetUnmapped, nil
	}
	log = log.With(slog.String("external_id", externalID))

	price, ok, err := s.source.CurrentPrice(ctx, externalID)
	if err != nil {
		return AssetFailed, fmt.Errorf("price_sync: %s: %w", a.Symbol, err)
	}
	if !ok {
		log.WarnContext(ctx, "asset missing from current price payload, skipping")
		return AssetSkipped, nil
	}

	samples, err := s.source.Chart(ctx, externalID, chartStart)
	if err != nil {
		return AssetFailed, fmt.Errorf("price_sync: %s: %w", a.Symbol, err)
	}

	stats := ComputeStats(samples, price, now)
	updated := a.Apply(stats, s.now().UTC())
	if err := s.assets.Update(ctx, updated); err != nil {
		return AssetFailed, fmt.Errorf("price_sync: update %s: %w", a.Symbol, err)
	}

	log.InfoContext(ctx, "asset updated",
		slog.String("price", updated.Price.String()),
		slog.String("price_1h_ago", updated.Price1hAgo.String()),
		slog.String("price_24h_ago", updated.Price24hAgo.String()),
		slog.String("daily_high", updated.DailyHigh.String()),
		slog.String("daily_low", updated.DailyLow.String()),
		slog.Int("samples", len(samples)),
	)
	s.afterCommit(ctx, updated)
	return AssetUpdated, nil
}

// afterCommit refreshes derived views. Failures here never fail the pass.
func (s *PriceSync) afterCommit(ctx context.Context, a domain.TrackedAsset) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, a.Symbol); err != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("symbol", a.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.AssetUpdated{
		Type:  domain.EventAssetUpdated,
		Asset: a,
		At:    a.LastUpdated,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.AssetUpdatesChannel, payload); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "publish asset update failed",
			slog.String("symbol", a.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
