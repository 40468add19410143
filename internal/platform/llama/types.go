package llama

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// currentResponse is the payload of GET /prices/current/{coins}.
type currentResponse struct {
	Coins map[string]currentCoin `json:"coins"`
}

type currentCoin struct {
	// Price is invalid when the field is absent or null.
	Price      decimal.NullDecimal `json:"price"`
	Symbol     string              `json:"symbol"`
	Timestamp  int64               `json:"timestamp"`
	Confidence float64             `json:"confidence"`
}

// chartResponse is the payload of GET /chart/{coins}.
type chartResponse struct {
	Coins map[string]chartCoin `json:"coins"`
}

type chartCoin struct {
	Symbol string       `json:"symbol"`
	Prices []chartPoint `json:"prices"`
}

type chartPoint struct {
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

func (c chartCoin) samples() []domain.PriceSample {
	out := make([]domain.PriceSample, 0, len(c.Prices))
	for _, p := range c.Prices {
		out = append(out, domain.PriceSample{Timestamp: p.Timestamp, Price: p.Price})
	}
	return out
}
