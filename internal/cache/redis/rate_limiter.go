package redis

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// WindowLog implements domain.WindowLog with one Redis sorted set per key.
// Members are opaque, scores are unix seconds. Every error wraps
// domain.ErrStoreUnavailable so the limiter can tell infrastructure failures
// from cancellation.
type WindowLog struct {
	rdb *redis.Client
}

// NewWindowLog creates a WindowLog backed by the given Client.
func NewWindowLog(c *Client) *WindowLog {
	return &WindowLog{rdb: c.Underlying()}
}

// RemoveRange issues ZREMRANGEBYSCORE key min (max.
func (w *WindowLog) RemoveRange(ctx context.Context, key string, min, max float64) error {
	if err := w.rdb.ZRemRangeByScore(ctx, key, formatScore(min), "("+formatScore(max)).Err(); err != nil {
		return wrap("zremrangebyscore", key, err)
	}
	return nil
}

// Count issues ZCARD key.
func (w *WindowLog) Count(ctx context.Context, key string) (int64, error) {
	n, err := w.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrap("zcard", key, err)
	}
	return n, nil
}

// Range issues ZRANGE key start stop WITHSCORES.
func (w *WindowLog) Range(ctx context.Context, key string, start, stop int64) ([]domain.WindowEntry, error) {
	zs, err := w.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap("zrange", key, err)
	}
	out := make([]domain.WindowEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, domain.WindowEntry{Member: member, Score: z.Score})
	}
	return out, nil
}

// Add issues ZADD key score member.
func (w *WindowLog) Add(ctx context.Context, key, member string, score float64) error {
	if err := w.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return wrap("zadd", key, err)
	}
	return nil
}

// Expire refreshes the key TTL. The TTL is the only cleanup an idle window
// gets, so it is best-effort rather than exact.
func (w *WindowLog) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := w.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return wrap("expire", key, err)
	}
	return nil
}

func formatScore(s float64) string {
	switch {
	case math.IsInf(s, -1):
		return "-inf"
	case math.IsInf(s, 1):
		return "+inf"
	}
	return strconv.FormatFloat(s, 'f', -1, 64)
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("redis: %s %s: %w: %w", op, key, domain.ErrStoreUnavailable, err)
}

// Compile-time interface check.
var _ domain.WindowLog = (*WindowLog)(nil)
