package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource reads prices from the upstream provider.
type PriceSource interface {
	// CurrentPrice returns ok=false when the coin is absent from the payload.
	CurrentPrice(ctx context.Context, externalID string) (price decimal.Decimal, ok bool, err error)
	// Chart returns hourly samples covering the 24 hours after start.
	Chart(ctx context.Context, externalID string, start time.Time) ([]PriceSample, error)
}
