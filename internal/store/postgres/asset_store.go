package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Numeric columns travel as text so no precision is lost to float64.
const assetColumns = `
	id, name, symbol, external_id,
	price::text, daily_high::text, daily_low::text,
	price_1h_ago::text, price_24h_ago::text, last_updated`

// AssetStore implements domain.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *pgxpool.Pool
}

// NewAssetStore creates an AssetStore backed by the given connection pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// List returns all assets ordered by id, which is insertion order.
func (s *AssetStore) List(ctx context.Context) ([]domain.TrackedAsset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackedAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	return out, nil
}

// GetBySymbol returns domain.ErrNotFound when no row matches.
func (s *AssetStore) GetBySymbol(ctx context.Context, symbol string) (domain.TrackedAsset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE symbol = $1`, symbol)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackedAsset{}, fmt.Errorf("postgres: asset %s: %w", symbol, domain.ErrNotFound)
		}
		return domain.TrackedAsset{}, fmt.Errorf("postgres: get asset %s: %w", symbol, err)
	}
	return a, nil
}

// Create inserts an asset with zeroed prices. The unique index on symbol
// turns a concurrent duplicate into domain.ErrDuplicateSymbol.
func (s *AssetStore) Create(ctx context.Context, name, symbol string) (domain.TrackedAsset, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO assets (name, symbol) VALUES ($1, $2) RETURNING `+assetColumns,
		name, symbol,
	)
	a, err := scanAsset(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.TrackedAsset{}, fmt.Errorf("postgres: create asset %s: %w", symbol, domain.ErrDuplicateSymbol)
		}
		return domain.TrackedAsset{}, fmt.Errorf("postgres: create asset %s: %w", symbol, err)
	}
	return a, nil
}

// Update writes every mutable column in a single statement. last_updated
// only moves forward.
func (s *AssetStore) Update(ctx context.Context, a domain.TrackedAsset) error {
	const query = `
		UPDATE assets SET
			name          = $2,
			external_id   = $3,
			price         = $4::numeric,
			daily_high    = $5::numeric,
			daily_low     = $6::numeric,
			price_1h_ago  = $7::numeric,
			price_24h_ago = $8::numeric,
			last_updated  = GREATEST(last_updated, $9)
		WHERE symbol = $1`

	tag, err := s.pool.Exec(ctx, query,
		a.Symbol, a.Name, a.ExternalID,
		a.Price.String(), a.DailyHigh.String(), a.DailyLow.String(),
		a.Price1hAgo.String(), a.Price24hAgo.String(),
		a.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("postgres: update asset %s: %w", a.Symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update asset %s: %w", a.Symbol, domain.ErrNotFound)
	}
	return nil
}

func scanAsset(row pgx.Row) (domain.TrackedAsset, error) {
	var (
		a                                   domain.TrackedAsset
		price, high, low, price1h, price24h string
		lastUpdated                         time.Time
	)
	if err := row.Scan(
		&a.ID, &a.Name, &a.Symbol, &a.ExternalID,
		&price, &high, &low, &price1h, &price24h,
		&lastUpdated,
	); err != nil {
		return domain.TrackedAsset{}, err
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&a.Price, price},
		{&a.DailyHigh, high},
		{&a.DailyLow, low},
		{&a.Price1hAgo, price1h},
		{&a.Price24hAgo, price24h},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.TrackedAsset{}, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
		*f.dst = d
	}
	a.LastUpdated = lastUpdated.UTC()
	return a, nil
}

// Compile-time interface check.
var _ domain.AssetStore = (*AssetStore)(nil)
