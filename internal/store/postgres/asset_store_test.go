package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/prices?sslmode=disable", DSN(ClientConfig{
		Host: "db", Database: "prices", User: "u", Password: "p",
	}))
	assert.Equal(t, "postgres://u:p@db:6543/prices?sslmode=require", DSN(ClientConfig{
		Host: "db", Port: 6543, Database: "prices", User: "u", Password: "p", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

// newTestStore connects to PRICESYNC_TEST_DSN. Tests are skipped when it is unset.
func newTestStore(t *testing.T) *AssetStore {
	t.Helper()
	dsn := os.Getenv("PRICESYNC_TEST_DSN")
	if dsn == "" {
		t.Skip("PRICESYNC_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.RunMigrations(ctx))
	return NewAssetStore(client.Pool())
}

func uniqueSymbol() string {
	return "T" + uuid.NewString()[:8]
}

func TestAssetStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	symbol := uniqueSymbol()

	created, err := store.Create(ctx, "Test Token", symbol)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.Price.IsZero())
	assert.True(t, created.DailyHigh.IsZero())

	got, err := store.GetBySymbol(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Test Token", got.Name)
}

func TestAssetStore_DuplicateSymbol(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	symbol := uniqueSymbol()

	_, err := store.Create(ctx, "First", symbol)
	require.NoError(t, err)
	_, err = store.Create(ctx, "Second", symbol)
	require.ErrorIs(t, err, domain.ErrDuplicateSymbol)

	got, err := store.GetBySymbol(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Name)
}

func TestAssetStore_GetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetBySymbol(context.Background(), uniqueSymbol())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssetStore_UpdateKeepsPrecision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	symbol := uniqueSymbol()

	a, err := store.Create(ctx, "Precise", symbol)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Second)
	a.Price = decimal.RequireFromString("0.123456789012345678")
	a.DailyHigh = decimal.RequireFromString("0.52")
	a.DailyLow = decimal.RequireFromString("0.45")
	a.Price1hAgo = decimal.RequireFromString("0.48")
	a.Price24hAgo = decimal.RequireFromString("0.45")
	a.LastUpdated = at
	require.NoError(t, store.Update(ctx, a))

	got, err := store.GetBySymbol(ctx, symbol)
	require.NoError(t, err)
	assert.True(t, a.Price.Equal(got.Price), "price %s", got.Price)
	assert.True(t, a.DailyHigh.Equal(got.DailyHigh))
	assert.True(t, a.DailyLow.Equal(got.DailyLow))
	assert.True(t, a.Price1hAgo.Equal(got.Price1hAgo))
	assert.True(t, a.Price24hAgo.Equal(got.Price24hAgo))
	assert.True(t, at.Equal(got.LastUpdated))

	// An older timestamp does not move last_updated backwards.
	a.LastUpdated = at.Add(-time.Hour)
	require.NoError(t, store.Update(ctx, a))
	got, err = store.GetBySymbol(ctx, symbol)
	require.NoError(t, err)
	assert.True(t, at.Equal(got.LastUpdated))
}

func TestAssetStore_UpdateMissing(t *testing.T) {
	store := newTestStore(t)
	a := domain.NewTrackedAsset("Ghost", uniqueSymbol())
	require.ErrorIs(t, store.Update(context.Background(), a), domain.ErrNotFound)
}

func TestAssetStore_ListInInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "A", uniqueSymbol())
	require.NoError(t, err)
	second, err := store.Create(ctx, "B", uniqueSymbol())
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)

	var firstIdx, secondIdx = -1, -1
	for i, a := range list {
		switch a.ID {
		case first.ID:
			firstIdx = i
		case second.ID:
			secondIdx = i
		}
	}
	require.NotEqual(t, -1, firstIdx)
	require.NotEqual(t, -1, secondIdx)
	assert.Less(t, firstIdx, secondIdx)
}
