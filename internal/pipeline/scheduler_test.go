package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pricesync/internal/domain"
	"github.com/alanyoungcy/pricesync/internal/notify"
	"github.com/alanyoungcy/pricesync/internal/ratelimit"
	"github.com/alanyoungcy/pricesync/internal/service"
	"github.com/alanyoungcy/pricesync/internal/store/memory"
)

type funcRunner func(ctx context.Context) (service.SyncReport, error)

func (f funcRunner) Run(ctx context.Context) (service.SyncReport, error) { return f(ctx) }

type countingArchiver struct {
	calls atomic.Int32
	err   error
}

func (a *countingArchiver) Archive(context.Context) (string, error) {
	a.calls.Add(1)
	return "p", a.err
}

type stubSender struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (s *stubSender) Send(_ context.Context, a notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *stubSender) Name() string { return "stub" }

var testLimit = ratelimit.Config{Key: "price_sync", MaxRequests: 8, Window: 30 * time.Second}

func newLimiter(log domain.WindowLog) *ratelimit.Limiter {
	noSleep := func(context.Context, time.Duration) error { return nil }
	return ratelimit.New(log, nil, ratelimit.WithClock(time.Now, noSleep))
}

func TestTrigger_SuccessRecordsWindowAndArchives(t *testing.T) {
	wl := memory.NewWindowLog()
	arch := &countingArchiver{}
	runner := funcRunner(func(context.Context) (service.SyncReport, error) {
		return service.SyncReport{Updated: 3}, nil
	})
	s := NewScheduler(runner, newLimiter(wl), SchedulerConfig{Limit: testLimit}, nil, WithArchiver(arch))

	report, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Updated)
	assert.Equal(t, int32(1), arch.calls.Load())

	n, err := wl.Count(context.Background(), "rate_limit:price_sync")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, s.Running())
}

func TestTrigger_FailureAlertsAndSkipsArchive(t *testing.T) {
	boom := errors.New("llama down")
	arch := &countingArchiver{}
	sender := &stubSender{}
	runner := funcRunner(func(context.Context) (service.SyncReport, error) {
		return service.SyncReport{Updated: 1}, boom
	})
	s := NewScheduler(runner, newLimiter(memory.NewWindowLog()), SchedulerConfig{Limit: testLimit}, nil,
		WithArchiver(arch), WithNotifier(notify.New(nil, sender)))

	report, err := s.Trigger(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, report.Updated)
	assert.Zero(t, arch.calls.Load())

	require.Len(t, sender.alerts, 1)
	a := sender.alerts[0]
	assert.Equal(t, notify.EventSyncFailed, a.Event)
	assert.Equal(t, "llama down", a.Body)
	assert.Equal(t, "1", a.Fields["updated"])
	assert.Equal(t, "price_sync", a.Fields["key"])
}

func TestTrigger_ArchiveFailureDoesNotFailRun(t *testing.T) {
	arch := &countingArchiver{err: errors.New("s3 down")}
	runner := funcRunner(func(context.Context) (service.SyncReport, error) { return service.SyncReport{}, nil })
	s := NewScheduler(runner, newLimiter(memory.NewWindowLog()), SchedulerConfig{Limit: testLimit}, nil, WithArchiver(arch))

	_, err := s.Trigger(context.Background())
	require.NoError(t, err)
}

func TestTrigger_RejectsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := funcRunner(func(context.Context) (service.SyncReport, error) {
		close(started)
		<-release
		return service.SyncReport{}, nil
	})
	s := NewScheduler(runner, newLimiter(memory.NewWindowLog()), SchedulerConfig{Limit: testLimit}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background())
		done <- err
	}()
	<-started
	assert.True(t, s.Running())

	_, err := s.Trigger(context.Background())
	require.ErrorIs(t, err, domain.ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestTrigger_Timeout(t *testing.T) {
	runner := funcRunner(func(ctx context.Context) (service.SyncReport, error) {
		<-ctx.Done()
		return service.SyncReport{}, ctx.Err()
	})
	cfg := SchedulerConfig{Limit: testLimit, Timeout: 20 * time.Millisecond}
	s := NewScheduler(runner, newLimiter(memory.NewWindowLog()), cfg, nil)

	_, err := s.Trigger(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStart_InvalidCron(t *testing.T) {
	s := NewScheduler(funcRunner(nil), newLimiter(memory.NewWindowLog()), SchedulerConfig{Cron: "not a cron"}, nil)
	require.Error(t, s.Start(context.Background()))
}

func TestStart_RunOnStartThenStops(t *testing.T) {
	ran := make(chan struct{}, 1)
	runner := funcRunner(func(context.Context) (service.SyncReport, error) {
		ran <- struct{}{}
		return service.SyncReport{}, nil
	})
	cfg := SchedulerConfig{Cron: "@every 1h", Limit: testLimit, RunOnStart: true}
	s := NewScheduler(runner, newLimiter(memory.NewWindowLog()), cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("run on start did not fire")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
