// Package ratelimit implements a distributed sliding-window log limiter. The
// window is kept in a shared ordered-set store so every process guarding the
// same operation key sees the same recent invocations.
//
// The limiter softens bursts rather than enforcing a hard cap: when the window
// is full the caller sleeps once until the oldest entry ages out and then
// proceeds without re-checking. Store failures never block the guarded
// operation; the limiter logs them and lets the call through.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// Outcomes reported to an Observer.
const (
	OutcomeAdmitted = "admitted"
	OutcomeDelayed  = "delayed"
	OutcomeFailOpen = "fail_open"
)

// Config binds an operation to its window.
type Config struct {
	// Key identifies the guarded operation across processes.
	Key string
	// MaxRequests is the number of calls allowed per Window.
	MaxRequests int
	Window      time.Duration
}

// Observer receives one callback per guarded call.
type Observer interface {
	ObserveAdmission(key, outcome string, delay time.Duration)
}

// Limiter gates operations using a domain.WindowLog.
type Limiter struct {
	store    domain.WindowLog
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithObserver reports admission outcomes to o.
func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// WithClock replaces the wall clock and the sleep function. Tests use it to
// run the limiter against a fake clock.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New creates a Limiter backed by store.
func New(store domain.WindowLog, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		store:  store,
		logger: logger.With(slog.String("component", "ratelimit")),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func windowKey(key string) string {
	return "rate_limit:" + key
}

// Guard runs op at most once, after the admission check for cfg. The error
// returned is op's error, unchanged.
//
// Cancelling ctx while the caller is delayed is the only case in which op is
// not run: Guard returns the wrapped context error and records no entry.
// Store failures never prevent op from running.
func (l *Limiter) Guard(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if err := l.admit(ctx, cfg); err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		l.logger.WarnContext(ctx, "ratelimit: store error, running unthrottled",
			slog.String("key", cfg.Key),
			slog.String("error", err.Error()),
		)
		l.observe(cfg.Key, OutcomeFailOpen, 0)
	}
	return op(ctx)
}

// Do is Guard for operations that return a value.
func Do[T any](ctx context.Context, l *Limiter, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Guard(ctx, cfg, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

// admit runs prune, count, the optional single delay, and the record step.
// Store failures come back wrapped in domain.ErrStoreUnavailable.
func (l *Limiter) admit(ctx context.Context, cfg Config) error {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		l.observe(cfg.Key, OutcomeAdmitted, 0)
		return nil
	}
	key := windowKey(cfg.Key)
	window := cfg.Window.Seconds()
	now := unixSeconds(l.now())

	if err := l.store.RemoveRange(ctx, key, math.Inf(-1), now-window); err != nil {
		return storeErr("prune", err)
	}

	count, err := l.store.Count(ctx, key)
	if err != nil {
		return storeErr("count", err)
	}

	var delay time.Duration
	if count >= int64(cfg.MaxRequests) {
		oldest, err := l.store.Range(ctx, key, 0, 0)
		if err != nil {
			return storeErr("range", err)
		}
		if len(oldest) > 0 {
			delay = secondsToDuration(oldest[0].Score + window - now)
		}
		if delay > 0 {
			l.logger.InfoContext(ctx, "ratelimit: window full, delaying",
				slog.String("key", cfg.Key),
				slog.Int64("count", count),
				slog.Duration("sleep", delay),
			)
			if err := l.sleep(ctx, delay); err != nil {
				return fmt.Errorf("ratelimit: wait %s: %w", cfg.Key, err)
			}
		}
	}

	at := unixSeconds(l.now())
	if err := l.store.Add(ctx, key, entryMember(at), at); err != nil {
		return storeErr("add", err)
	}
	if err := l.store.Expire(ctx, key, cfg.Window); err != nil {
		return storeErr("expire", err)
	}

	if delay > 0 {
		l.observe(cfg.Key, OutcomeDelayed, delay)
	} else {
		l.observe(cfg.Key, OutcomeAdmitted, 0)
	}
	return nil
}

func (l *Limiter) observe(key, outcome string, delay time.Duration) {
	if l.observer != nil {
		l.observer.ObserveAdmission(key, outcome, delay)
	}
}

func storeErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, step, err)
}

// entryMember keeps members unique when two callers record the same instant.
func entryMember(score float64) string {
	return strconv.FormatFloat(score, 'f', 6, 64) + ":" + uuid.NewString()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
