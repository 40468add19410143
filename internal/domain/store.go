package domain

import "context"

// AssetStore persists tracked assets.
type AssetStore interface {
	// List returns every asset in the store's natural order (insertion order).
	List(ctx context.Context) ([]TrackedAsset, error)
	// GetBySymbol returns ErrNotFound when no asset has the symbol.
	GetBySymbol(ctx context.Context, symbol string) (TrackedAsset, error)
	// Create inserts a new asset with zeroed prices. It returns
	// ErrDuplicateSymbol when the symbol is taken.
	Create(ctx context.Context, name, symbol string) (TrackedAsset, error)
	// Update commits the full record in one write.
	Update(ctx context.Context, asset TrackedAsset) error
}
