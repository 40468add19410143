package service

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

const (
	hourSeconds = 60 * 60
	daySeconds  = 24 * hourSeconds

	// matchTolerance bounds |sample - target| for the 1h and 24h lookups.
	matchTolerance = hourSeconds
)

// ComputeStats derives one fetch cycle's statistics from the chart samples
// and the current price. now is unix seconds for the pass.
//
// The 1h and 24h values are the first sample in sequence order within the
// tolerance of the target, or zero. With no samples HasRange is false and the
// caller keeps the stored high and low.
func ComputeStats(samples []domain.PriceSample, current decimal.Decimal, now int64) domain.PriceStats {
	stats := domain.PriceStats{
		Price:       current,
		Price1hAgo:  firstWithin(samples, now-hourSeconds),
		Price24hAgo: firstWithin(samples, now-daySeconds),
	}
	if len(samples) == 0 {
		return stats
	}

	high, low := samples[0].Price, samples[0].Price
	for _, s := range samples[1:] {
		if s.Price.GreaterThan(high) {
			high = s.Price
		}
		if s.Price.LessThan(low) {
			low = s.Price
		}
	}
	stats.DailyHigh = high
	stats.DailyLow = low
	stats.HasRange = true
	return stats
}

func firstWithin(samples []domain.PriceSample, target int64) decimal.Decimal {
	for _, s := range samples {
		d := s.Timestamp - target
		if d < 0 {
			d = -d
		}
		if d < matchTolerance {
			return s.Price
		}
	}
	return decimal.Zero
}
