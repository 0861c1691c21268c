package feed

import (
	"context"
	"sync"
)

// Window keeps a bounded ring of recent prices per symbol plus the latest
// quote-derived state. It is fed from the tick stream and serves the risk
// manager's volatility, correlation and spread views without another
// exchange round trip.
type Window struct {
	mu      sync.RWMutex
	size    int
	rings   map[string]*ring
	spreads map[string]float64

	// exponentially smoothed stress inputs, process-wide
	spreadEWMA float64
	volumeEWMA float64
}

type ring struct {
	buf   []float64
	next  int
	count int
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = 256
	}
	return &Window{
		size:    size,
		rings:   make(map[string]*ring),
		spreads: make(map[string]float64),
	}
}

// volumeScale normalizes tick volume into [0,1] for the spike indicator.
const volumeScale = 1e6

// Observe records a full tick: the price ring plus the spread and volume
// indicators when the tick carries book data.
func (w *Window) Observe(t Tick) {
	w.Record(t.Symbol, t.Price)
	w.mu.Lock()
	defer w.mu.Unlock()
	if sp := t.Spread(); sp > 0 {
		w.spreads[t.Symbol] = sp
		w.spreadEWMA = w.spreadEWMA*0.9 + sp*0.1
	}
	if t.Volume > 0 {
		spike := t.Volume * t.Price / volumeScale
		if spike > 1 {
			spike = 1
		}
		w.volumeEWMA = w.volumeEWMA*0.95 + spike*0.05
	}
}

// Spread returns the latest relative bid/ask spread for the symbol, 0 when
// no quote has been seen.
func (w *Window) Spread(symbol string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.spreads[symbol]
}

// StressIndicators returns the smoothed spread-widening and volume-spike
// components used by the market stress score.
func (w *Window) StressIndicators() (spreadWidening, volumeSpike float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.spreadEWMA, w.volumeEWMA
}

func (w *Window) Record(symbol string, price float64) {
	if price <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[symbol]
	if !ok {
		r = &ring{buf: make([]float64, w.size)}
		w.rings[symbol] = r
	}
	r.buf[r.next] = price
	r.next = (r.next + 1) % w.size
	if r.count < w.size {
		r.count++
	}
}

// RecentPrices returns up to n prices for the symbol in chronological order.
func (w *Window) RecentPrices(_ context.Context, symbol string, n int) ([]float64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.rings[symbol]
	if !ok || r.count == 0 {
		return nil, nil
	}
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]float64, 0, n)
	start := (r.next - n + w.size) % w.size
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%w.size])
	}
	return out, nil
}

// Symbols lists every symbol with at least one recorded price.
func (w *Window) Symbols() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.rings))
	for sym := range w.rings {
		out = append(out, sym)
	}
	return out
}
