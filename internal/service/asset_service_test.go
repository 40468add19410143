package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pricesync/internal/domain"
	"github.com/alanyoungcy/pricesync/internal/store/memory"
)

func TestAssetService_CreateDuplicate(t *testing.T) {
	store := memory.NewAssetStore()
	svc := NewAssetService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Test", "TEST")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Test", "TEST")
	require.ErrorIs(t, err, domain.ErrDuplicateSymbol)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAssetService_CreateEmptySymbol(t *testing.T) {
	store := memory.NewAssetStore()
	svc := NewAssetService(store, nil, nil)
	ctx := context.Background()

	for _, sym := range []string{"", "   "} {
		_, err := svc.Create(ctx, "Nameless", sym)
		require.ErrorIs(t, err, domain.ErrEmptySymbol)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAssetService_CreateZeroedAndTrimmed(t *testing.T) {
	svc := NewAssetService(memory.NewAssetStore(), nil, nil)

	a, err := svc.Create(context.Background(), "  Curve DAO ", " CRV ")
	require.NoError(t, err)
	assert.Equal(t, "CRV", a.Symbol)
	assert.Equal(t, "Curve DAO", a.Name)
	assert.True(t, a.Price.IsZero())
	assert.Equal(t, "Curve DAO (CRV)", a.String())
}

func TestAssetService_GetReadsThroughCache(t *testing.T) {
	store := memory.NewAssetStore()
	cache := newFakeCache()
	svc := NewAssetService(store, cache, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Curve DAO", "CRV")
	require.NoError(t, err)

	got, err := svc.GetBySymbol(ctx, "CRV")
	require.NoError(t, err)
	assert.Equal(t, "CRV", got.Symbol)

	cached, err := cache.Get(ctx, "CRV")
	require.NoError(t, err)
	assert.Equal(t, got.ID, cached.ID)

	// A cached entry is served without touching the store.
	cache.items["CRV"] = domain.TrackedAsset{Symbol: "CRV", Name: "from cache"}
	got, err = svc.GetBySymbol(ctx, "CRV")
	require.NoError(t, err)
	assert.Equal(t, "from cache", got.Name)
}

func TestAssetService_GetMissing(t *testing.T) {
	svc := NewAssetService(memory.NewAssetStore(), newFakeCache(), nil)
	_, err := svc.GetBySymbol(context.Background(), "NOPE")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
