package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowRecentPrices(t *testing.T) {
	w := NewWindow(3)
	ctx := context.Background()

	got, err := w.RecentPrices(ctx, "BTCUSDT", 5)
	assert.NoError(t, err)
	assert.Nil(t, got)

	w.Record("BTCUSDT", 1)
	w.Record("BTCUSDT", 2)
	got, _ = w.RecentPrices(ctx, "BTCUSDT", 10)
	assert.Equal(t, []float64{1, 2}, got)

	// wraps and keeps only the newest three
	w.Record("BTCUSDT", 3)
	w.Record("BTCUSDT", 4)
	got, _ = w.RecentPrices(ctx, "BTCUSDT", 10)
	assert.Equal(t, []float64{2, 3, 4}, got)

	got, _ = w.RecentPrices(ctx, "BTCUSDT", 2)
	assert.Equal(t, []float64{3, 4}, got)
}

func TestWindowIgnoresBadPrices(t *testing.T) {
	w := NewWindow(4)
	w.Record("ETHUSDT", 0)
	w.Record("ETHUSDT", -5)
	assert.Empty(t, w.Symbols())
}

func TestWindowTracksSpread(t *testing.T) {
	w := NewWindow(8)
	ctx := context.Background()

	assert.Zero(t, w.Spread("BTCUSDT"))

	w.Observe(Tick{Symbol: "BTCUSDT", Price: 100, Bid: 99.5, Ask: 100.5, Volume: 2})
	assert.InDelta(t, 0.01, w.Spread("BTCUSDT"), 1e-9)

	got, _ := w.RecentPrices(ctx, "BTCUSDT", 10)
	assert.Equal(t, []float64{100}, got, "Observe also records the price")

	// a crossed or missing book leaves the last spread in place
	w.Observe(Tick{Symbol: "BTCUSDT", Price: 101})
	w.Observe(Tick{Symbol: "BTCUSDT", Price: 101, Bid: 102, Ask: 101})
	assert.InDelta(t, 0.01, w.Spread("BTCUSDT"), 1e-9)
}

func TestWindowStressIndicators(t *testing.T) {
	w := NewWindow(8)

	spread, volume := w.StressIndicators()
	assert.Zero(t, spread)
	assert.Zero(t, volume)

	w.Observe(Tick{Symbol: "BTCUSDT", Price: 100, Bid: 99, Ask: 101, Volume: 50000})
	spread, volume = w.StressIndicators()
	assert.InDelta(t, 0.002, spread, 1e-9, "spread widening is smoothed with a 0.1 gain")
	assert.InDelta(t, 0.05, volume, 1e-9, "notional above the scale caps the spike at 1, smoothed with a 0.05 gain")

	// repeated wide quotes converge toward the raw spread
	for i := 0; i < 200; i++ {
		w.Observe(Tick{Symbol: "BTCUSDT", Price: 100, Bid: 99, Ask: 101})
	}
	spread, _ = w.StressIndicators()
	assert.InDelta(t, 0.02, spread, 1e-3)
}
