package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

const defaultAssetTTL = 5 * time.Minute

// AssetCache implements domain.AssetCache with one JSON string per symbol at
// "asset:{symbol}".
type AssetCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAssetCache creates an AssetCache. A non-positive ttl selects the default
// of five minutes.
func NewAssetCache(c *Client, ttl time.Duration) *AssetCache {
	if ttl <= 0 {
		ttl = defaultAssetTTL
	}
	return &AssetCache{rdb: c.Underlying(), ttl: ttl}
}

func assetKey(symbol string) string { return "asset:" + symbol }

// Set stores the asset with the cache TTL.
func (ac *AssetCache) Set(ctx context.Context, asset domain.TrackedAsset) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("redis: marshal asset %s: %w", asset.Symbol, err)
	}
	if err := ac.rdb.Set(ctx, assetKey(asset.Symbol), data, ac.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set asset %s: %w", asset.Symbol, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a cache miss.
func (ac *AssetCache) Get(ctx context.Context, symbol string) (domain.TrackedAsset, error) {
	data, err := ac.rdb.Get(ctx, assetKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TrackedAsset{}, domain.ErrNotFound
		}
		return domain.TrackedAsset{}, fmt.Errorf("redis: get asset %s: %w", symbol, err)
	}

	var asset domain.TrackedAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return domain.TrackedAsset{}, fmt.Errorf("redis: unmarshal asset %s: %w", symbol, err)
	}
	return asset, nil
}

// Invalidate removes the cached entry for symbol.
func (ac *AssetCache) Invalidate(ctx context.Context, symbol string) error {
	if err := ac.rdb.Del(ctx, assetKey(symbol)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate asset %s: %w", symbol, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AssetCache = (*AssetCache)(nil)
