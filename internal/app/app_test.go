package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pricesync/internal/cache/redis"
	"github.com/alanyoungcy/pricesync/internal/config"
	"github.com/alanyoungcy/pricesync/internal/domain"
	"github.com/alanyoungcy/pricesync/internal/store/memory"
)

type stubSource struct {
	price decimal.Decimal
	err   error
}

func (s stubSource) CurrentPrice(context.Context, string) (decimal.Decimal, bool, error) {
	if s.err != nil {
		return decimal.Zero, false, s.err
	}
	return s.price, true, nil
}

func (s stubSource) Chart(_ context.Context, _ string, start time.Time) ([]domain.PriceSample, error) {
	day := start.Unix()
	return []domain.PriceSample{
		{Timestamp: day, Price: decimal.RequireFromString("0.40")},
		{Timestamp: day + 82800, Price: decimal.RequireFromString("0.45")},
	}, nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Storage = "memory"
	cfg.Redis.Enabled = false
	cfg.Mode = "once"
	return &cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wireMemory(t *testing.T, cfg *config.Config) *Dependencies {
	t.Helper()
	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return deps
}

func TestWire_MemoryWithoutRedis(t *testing.T) {
	deps := wireMemory(t, testConfig())

	assert.IsType(t, &memory.AssetStore{}, deps.Assets)
	assert.IsType(t, &memory.WindowLog{}, deps.WindowLog)
	assert.IsType(t, &memory.UpdateBus{}, deps.Bus)
	assert.Nil(t, deps.Cache)
	assert.Nil(t, deps.Blob)
	assert.Empty(t, deps.Checks)
	assert.False(t, deps.Notifier.Enabled())
	assert.NotNil(t, deps.Source)
}

func TestWire_UnreachableRedisStillWires(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Close()

	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.MaxRetries = -1
	deps := wireMemory(t, cfg)

	assert.IsType(t, &redis.WindowLog{}, deps.WindowLog)
	assert.IsType(t, &redis.UpdateBus{}, deps.Bus)
	assert.NotNil(t, deps.Cache)
	require.Contains(t, deps.Checks, "redis")
	assert.Error(t, deps.Checks["redis"](context.Background()))

	// The pass still runs, unthrottled, while the window log is down.
	deps.Source = stubSource{price: decimal.RequireFromString("0.50")}
	store := deps.Assets.(*memory.AssetStore)
	store.Seed(domain.NewTrackedAsset("Curve DAO", "CRV"))
	require.NoError(t, New(cfg, discardLogger()).OnceMode(context.Background(), deps))

	crv, err := store.GetBySymbol(context.Background(), "CRV")
	require.NoError(t, err)
	assert.True(t, crv.Price.Equal(decimal.RequireFromString("0.50")))
}

func TestWire_NotifierFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"
	deps := wireMemory(t, cfg)
	assert.True(t, deps.Notifier.Enabled())
}

func TestOnceMode_UpdatesMappedAssets(t *testing.T) {
	cfg := testConfig()
	deps := wireMemory(t, cfg)
	deps.Source = stubSource{price: decimal.RequireFromString("0.50")}

	store := deps.Assets.(*memory.AssetStore)
	store.Seed(
		domain.NewTrackedAsset("Curve DAO", "CRV"),
		domain.NewTrackedAsset("Unknown", "FOO"),
	)

	a := New(cfg, discardLogger())
	require.NoError(t, a.OnceMode(context.Background(), deps))

	crv, err := store.GetBySymbol(context.Background(), "CRV")
	require.NoError(t, err)
	assert.True(t, crv.Price.Equal(decimal.RequireFromString("0.50")))
	assert.True(t, crv.Price1hAgo.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, crv.Price24hAgo.Equal(decimal.RequireFromString("0.40")))
	assert.True(t, crv.DailyHigh.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, crv.DailyLow.Equal(decimal.RequireFromString("0.40")))

	foo, err := store.GetBySymbol(context.Background(), "FOO")
	require.NoError(t, err)
	assert.True(t, foo.Price.IsZero())

	// The pass recorded one admission in the process-local window.
	n, err := deps.WindowLog.Count(context.Background(), "rate_limit:"+cfg.Sync.OperationKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOnceMode_UpstreamFailure(t *testing.T) {
	cfg := testConfig()
	deps := wireMemory(t, cfg)
	deps.Source = stubSource{err: fmt.Errorf("status 503: %w", domain.ErrUpstream)}
	deps.Assets.(*memory.AssetStore).Seed(domain.NewTrackedAsset("Curve DAO", "CRV"))

	err := New(cfg, discardLogger()).OnceMode(context.Background(), deps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

func TestNewScheduler_UsesConfiguredLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.MaxRequests = 1
	cfg.Sync.Window = config.Defaults().Sync.Window
	deps := wireMemory(t, cfg)
	deps.Source = stubSource{price: decimal.RequireFromString("1")}

	sched := New(cfg, discardLogger()).newScheduler(deps)
	_, err := sched.Trigger(context.Background())
	require.NoError(t, err)

	// A second trigger inside the window is held back; a short deadline
	// cancels it before the task runs.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sched.Trigger(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
