package domain

import (
	"context"
	"time"
)

// WindowEntry is one member of a window log together with its score.
type WindowEntry struct {
	Member string
	Score  float64
}

// WindowLog is the shared ordered-set store behind the sliding-window limiter.
// Each call is atomic on its own; no call sequence is.
type WindowLog interface {
	// RemoveRange drops entries with min <= score < max.
	RemoveRange(ctx context.Context, key string, min, max float64) error
	Count(ctx context.Context, key string) (int64, error)
	// Range returns entries by rank, lowest score first; stop is inclusive.
	Range(ctx context.Context, key string, start, stop int64) ([]WindowEntry, error)
	Add(ctx context.Context, key string, member string, score float64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// AssetCache provides fast symbol lookups for the public API.
type AssetCache interface {
	Set(ctx context.Context, asset TrackedAsset) error
	Get(ctx context.Context, symbol string) (TrackedAsset, error)
	Invalidate(ctx context.Context, symbol string) error
}

// UpdateBus fans asset updates out to other processes.
type UpdateBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
