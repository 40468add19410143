package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// AssetService backs the public asset API.
type AssetService struct {
	assets domain.AssetStore
	cache  domain.AssetCache
	logger *slog.Logger
}

// NewAssetService creates an AssetService. cache may be nil.
func NewAssetService(assets domain.AssetStore, cache domain.AssetCache, logger *slog.Logger) *AssetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetService{
		assets: assets,
		cache:  cache,
		logger: logger.With(slog.String("component", "asset_service")),
	}
}

// List returns every tracked asset.
func (s *AssetService) List(ctx context.Context) ([]domain.TrackedAsset, error) {
	assets, err := s.assets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("asset_service: list: %w", err)
	}
	return assets, nil
}

// GetBySymbol checks the cache first and falls back to the store.
func (s *AssetService) GetBySymbol(ctx context.Context, symbol string) (domain.TrackedAsset, error) {
	if s.cache != nil {
		if a, err := s.cache.Get(ctx, symbol); err == nil {
			return a, nil
		}
	}

	a, err := s.assets.GetBySymbol(ctx, symbol)
	if err != nil {
		return domain.TrackedAsset{}, fmt.Errorf("asset_service: get %q: %w", symbol, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, a); err != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return a, nil
}

// Create registers a new asset with zeroed prices. Surrounding whitespace is
// trimmed from both fields.
func (s *AssetService) Create(ctx context.Context, name, symbol string) (domain.TrackedAsset, error) {
	symbol = strings.TrimSpace(symbol)
	name = strings.TrimSpace(name)
	if symbol == "" {
		return domain.TrackedAsset{}, fmt.Errorf("asset_service: create: %w", domain.ErrEmptySymbol)
	}

	a, err := s.assets.Create(ctx, name, symbol)
	if err != nil {
		return domain.TrackedAsset{}, fmt.Errorf("asset_service: create %q: %w", symbol, err)
	}
	s.logger.InfoContext(ctx, "asset created",
		slog.String("symbol", a.Symbol),
		slog.Int64("id", a.ID),
	)
	return a, nil
}
