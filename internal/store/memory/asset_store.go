// Package memory provides an in-process domain.AssetStore for tests and
// single-node runs without PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// AssetStore keeps assets in insertion order behind a mutex.
type AssetStore struct {
	mu       sync.RWMutex
	nextID   int64
	assets   []domain.TrackedAsset
	bySymbol map[string]int
	now      func() time.Time
}

// NewAssetStore returns an empty store.
func NewAssetStore() *AssetStore {
	return &AssetStore{
		bySymbol: make(map[string]int),
		now:      time.Now,
	}
}

// Seed inserts assets as-is, assigning IDs where missing. Existing symbols
// are overwritten.
func (s *AssetStore) Seed(assets ...domain.TrackedAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assets {
		if idx, ok := s.bySymbol[a.Symbol]; ok {
			a.ID = s.assets[idx].ID
			s.assets[idx] = a
			continue
		}
		s.nextID++
		if a.ID == 0 {
			a.ID = s.nextID
		} else if a.ID > s.nextID {
			s.nextID = a.ID
		}
		s.bySymbol[a.Symbol] = len(s.assets)
		s.assets = append(s.assets, a)
	}
}

func (s *AssetStore) List(_ context.Context) ([]domain.TrackedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TrackedAsset, len(s.assets))
	copy(out, s.assets)
	return out, nil
}

func (s *AssetStore) GetBySymbol(_ context.Context, symbol string) (domain.TrackedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.bySymbol[symbol]
	if !ok {
		return domain.TrackedAsset{}, fmt.Errorf("memory: asset %s: %w", symbol, domain.ErrNotFound)
	}
	return s.assets[idx], nil
}

func (s *AssetStore) Create(_ context.Context, name, symbol string) (domain.TrackedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySymbol[symbol]; ok {
		return domain.TrackedAsset{}, fmt.Errorf("memory: create asset %s: %w", symbol, domain.ErrDuplicateSymbol)
	}
	s.nextID++
	a := domain.NewTrackedAsset(name, symbol)
	a.ID = s.nextID
	a.LastUpdated = s.now().UTC()
	s.bySymbol[symbol] = len(s.assets)
	s.assets = append(s.assets, a)
	return a, nil
}

func (s *AssetStore) Update(_ context.Context, a domain.TrackedAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.bySymbol[a.Symbol]
	if !ok {
		return fmt.Errorf("memory: update asset %s: %w", a.Symbol, domain.ErrNotFound)
	}
	prev := s.assets[idx]
	a.ID = prev.ID
	if a.LastUpdated.Before(prev.LastUpdated) {
		a.LastUpdated = prev.LastUpdated
	}
	s.assets[idx] = a
	return nil
}

var _ domain.AssetStore = (*AssetStore)(nil)
