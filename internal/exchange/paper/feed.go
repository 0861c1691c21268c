package paper

import (
	"context"
	"math/rand"
	"time"

	"riptide/internal/feed"
)

// Feed produces a synthetic random-walk tick stream so the whole pipeline
// can run without exchange connectivity. Each tick carries a symmetric
// bid/ask book around the walk price.
type Feed struct {
	Interval   time.Duration
	Start      map[string]float64
	Drift      float64
	HalfSpread float64
}

func NewFeed(start map[string]float64, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed{Interval: interval, Start: start, Drift: 0.002, HalfSpread: 0.0005}
}

func (f *Feed) Subscribe(ctx context.Context, symbols []string) (<-chan feed.Tick, error) {
	out := make(chan feed.Tick, 256)
	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if p, ok := f.Start[sym]; ok && p > 0 {
			prices[sym] = p
		} else {
			prices[sym] = 100
		}
	}

	go func() {
		defer close(out)
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		ticker := time.NewTicker(f.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, sym := range symbols {
					step := 1 + (rng.Float64()*2-1)*f.Drift
					prices[sym] *= step
					p := prices[sym]
					t := feed.Tick{
						Symbol: sym,
						Price:  p,
						Bid:    p * (1 - f.HalfSpread),
						Ask:    p * (1 + f.HalfSpread),
						Volume: rng.Float64() * 10,
						At:     now,
					}
					select {
					case out <- t:
					default:
					}
				}
			}
		}
	}()
	return out, nil
}
