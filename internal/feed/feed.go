// Package feed defines the market data surface the pipeline consumes.
package feed

import (
	"context"
	"time"
)

// Tick is a single price observation for a symbol. Bid/Ask are the best
// book levels when the source provides them, zero otherwise.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Bid    float64   `json:"bid,omitempty"`
	Ask    float64   `json:"ask,omitempty"`
	Volume float64   `json:"volume,omitempty"`
	At     time.Time `json:"at"`
}

// Spread returns the relative bid/ask spread, 0 when the book side is
// missing.
func (t Tick) Spread() float64 {
	if t.Bid <= 0 || t.Ask <= t.Bid || t.Price <= 0 {
		return 0
	}
	return (t.Ask - t.Bid) / t.Price
}

// Feed streams ticks until the context is cancelled.
type Feed interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan Tick, error)
}

// History serves the risk manager's market views: recent closing prices
// (most recent last) for volatility and correlation windows, the latest
// relative bid/ask spread per symbol, and the smoothed market stress
// indicators fed from the tick stream.
type History interface {
	RecentPrices(ctx context.Context, symbol string, n int) ([]float64, error)
	Spread(symbol string) float64
	StressIndicators() (spreadWidening, volumeSpike float64)
}
