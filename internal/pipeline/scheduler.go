// Package pipeline drives the price sync task: a cron schedule, the
// rate-limit guard around each pass, failure alerts and snapshot archiving.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/pricesync/internal/domain"
	"github.com/alanyoungcy/pricesync/internal/notify"
	"github.com/alanyoungcy/pricesync/internal/ratelimit"
	"github.com/alanyoungcy/pricesync/internal/service"
)

// SyncRunner performs one sync pass.
type SyncRunner interface {
	Run(ctx context.Context) (service.SyncReport, error)
}

// Archiver stores a snapshot after a successful pass.
type Archiver interface {
	Archive(ctx context.Context) (string, error)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Cron is a standard 5-field expression or a descriptor such as "@every 5m".
	Cron string
	// Limit is the admission window shared by every process running the task.
	Limit ratelimit.Config
	// Timeout bounds one pass including any limiter delay. Zero means none.
	Timeout    time.Duration
	RunOnStart bool
}

// Scheduler runs the sync task on a schedule and on demand. Runs inside one
// process never overlap; runs across processes are bounded by the limiter.
type Scheduler struct {
	runner   SyncRunner
	limiter  *ratelimit.Limiter
	cfg      SchedulerConfig
	archiver Archiver
	notifier *notify.Notifier
	logger   *slog.Logger

	running atomic.Bool
}

// SchedulerOption configures optional collaborators.
type SchedulerOption func(*Scheduler)

func WithArchiver(a Archiver) SchedulerOption {
	return func(s *Scheduler) { s.archiver = a }
}

func WithNotifier(n *notify.Notifier) SchedulerOption {
	return func(s *Scheduler) { s.notifier = n }
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner SyncRunner, limiter *ratelimit.Limiter, cfg SchedulerConfig, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:  runner,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the cron schedule until ctx is cancelled, then waits for an
// in-flight pass to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.cfg.Cron, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("scheduler: parse cron %q: %w", s.cfg.Cron, err)
	}

	s.logger.InfoContext(ctx, "scheduler started",
		slog.String("cron", s.cfg.Cron),
		slog.String("key", s.cfg.Limit.Key),
		slog.Int("max_requests", s.cfg.Limit.MaxRequests),
		slog.Duration("window", s.cfg.Limit.Window),
	)
	c.Start()
	if s.cfg.RunOnStart {
		go s.tick(ctx)
	}

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Trigger(ctx); errors.Is(err, domain.ErrRunInProgress) {
		s.logger.WarnContext(ctx, "previous run still in flight, skipping tick")
	}
}

// Trigger runs one guarded pass now. It returns domain.ErrRunInProgress instead of
// queueing when a pass is already running in this process.
func (s *Scheduler) Trigger(ctx context.Context) (service.SyncReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return service.SyncReport{}, domain.ErrRunInProgress
	}
	defer s.running.Store(false)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	report, err := ratelimit.Do(ctx, s.limiter, s.cfg.Limit, s.runner.Run)
	if err != nil {
		s.alert(ctx, report, err)
		return report, err
	}

	if s.archiver != nil {
		if _, err := s.archiver.Archive(ctx); err != nil {
			s.logger.WarnContext(ctx, "snapshot archive failed", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// Running reports whether a pass is in flight in this process.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) alert(ctx context.Context, report service.SyncReport, runErr error) {
	if !s.notifier.Enabled() || errors.Is(runErr, context.Canceled) {
		return
	}
	// The run context may be the one that expired.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	err := s.notifier.Notify(sendCtx, notify.Alert{
		Event: notify.EventSyncFailed,
		Title: "Price sync failed",
		Body:  runErr.Error(),
		Fields: map[string]string{
			"key":      s.cfg.Limit.Key,
			"updated":  strconv.Itoa(report.Updated),
			"skipped":  strconv.Itoa(report.Skipped),
			"unmapped": strconv.Itoa(report.Unmapped),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failure alert not delivered", slog.String("error", err.Error()))
	}
}
