package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TrackedAsset is a priced instrument whose statistics the sync task keeps
// current. Symbol is the lookup key and never changes after creation.
type TrackedAsset struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	ExternalID  string          `json:"external_id,omitempty"` // chain-qualified address, e.g. "ethereum:0x..."
	Price       decimal.Decimal `json:"price"`
	DailyHigh   decimal.Decimal `json:"daily_high"`
	DailyLow    decimal.Decimal `json:"daily_low"`
	Price1hAgo  decimal.Decimal `json:"price_1h_ago"`
	Price24hAgo decimal.Decimal `json:"price_24h_ago"`
	LastUpdated time.Time       `json:"last_updated"`
}

// NewTrackedAsset returns an asset with every price field zeroed.
func NewTrackedAsset(name, symbol string) TrackedAsset {
	return TrackedAsset{
		Name:        name,
		Symbol:      symbol,
		Price:       decimal.Zero,
		DailyHigh:   decimal.Zero,
		DailyLow:    decimal.Zero,
		Price1hAgo:  decimal.Zero,
		Price24hAgo: decimal.Zero,
	}
}

func (a TrackedAsset) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.Symbol)
}

// PriceSample is one point of the hourly chart returned by the price source.
// It only lives for the duration of a sync pass.
type PriceSample struct {
	Timestamp int64           `json:"timestamp"` // unix seconds
	Price     decimal.Decimal `json:"price"`
}

// PriceStats holds the values derived from one fetch cycle. HasRange is false
// when the chart was empty, in which case DailyHigh and DailyLow are unset and
// the stored values must be kept.
type PriceStats struct {
	Price       decimal.Decimal
	DailyHigh   decimal.Decimal
	DailyLow    decimal.Decimal
	Price1hAgo  decimal.Decimal
	Price24hAgo decimal.Decimal
	HasRange    bool
}

// Apply returns a copy of a with the stats of one fetch cycle written in and
// LastUpdated moved to at. LastUpdated never moves backwards.
func (a TrackedAsset) Apply(s PriceStats, at time.Time) TrackedAsset {
	out := a
	out.Price = s.Price
	out.Price1hAgo = s.Price1hAgo
	out.Price24hAgo = s.Price24hAgo
	if s.HasRange {
		out.DailyHigh = s.DailyHigh
		out.DailyLow = s.DailyLow
	}
	if at.After(a.LastUpdated) {
		out.LastUpdated = at
	}
	return out
}
