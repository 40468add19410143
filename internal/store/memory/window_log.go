package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// WindowLog is a process-local domain.WindowLog. It only throttles callers
// inside one process; use the Redis implementation to share a window.
type WindowLog struct {
	mu      sync.Mutex
	sets    map[string]map[string]float64
	expires map[string]time.Time
	now     func() time.Time
}

func NewWindowLog() *WindowLog {
	return &WindowLog{
		sets:    make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// set returns the live set for key, dropping it first if it has expired.
func (w *WindowLog) set(key string) map[string]float64 {
	if exp, ok := w.expires[key]; ok && !w.now().Before(exp) {
		delete(w.sets, key)
		delete(w.expires, key)
	}
	return w.sets[key]
}

func (w *WindowLog) RemoveRange(_ context.Context, key string, min, max float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for member, score := range w.set(key) {
		if score >= min && score < max {
			delete(w.sets[key], member)
		}
	}
	return nil
}

func (w *WindowLog) Count(_ context.Context, key string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(len(w.set(key))), nil
}

func (w *WindowLog) Range(_ context.Context, key string, start, stop int64) ([]domain.WindowEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := make([]domain.WindowEntry, 0, len(w.set(key)))
	for member, score := range w.set(key) {
		entries = append(entries, domain.WindowEntry{Member: member, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score < entries[j].Score
		}
		return entries[i].Member < entries[j].Member
	})

	n := int64(len(entries))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	start = max(start, 0)
	stop = min(stop, n-1)
	if start > stop {
		return nil, nil
	}
	return entries[start : stop+1], nil
}

func (w *WindowLog) Add(_ context.Context, key, member string, score float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.set(key) == nil {
		w.sets[key] = make(map[string]float64)
	}
	w.sets[key][member] = score
	return nil
}

func (w *WindowLog) Expire(_ context.Context, key string, ttl time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.set(key) == nil {
		return nil
	}
	w.expires[key] = w.now().Add(ttl)
	return nil
}

var _ domain.WindowLog = (*WindowLog)(nil)
