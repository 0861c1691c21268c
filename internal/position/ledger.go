package position

import (
	"math"
	"sync"
	"time"

	"riptide/internal/logger"
	"riptide/internal/pkg/trading"
)

// Ledger tracks all positions plus account equity. It is the single writer
// for every position; mutation goes through ApplyFill/MarkPrice and nothing
// else. Closed positions are kept for audit.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position

	cash float64 // initial capital; trade PnL and fees are tracked separately

	// equity bookkeeping for drawdown and daily loss checks
	equityPeak float64
	dayStart   time.Time
	dayStartEq float64
}

func NewLedger(initialBalance float64) *Ledger {
	now := time.Now()
	return &Ledger{
		positions:  make(map[string]*Position),
		cash:       initialBalance,
		equityPeak: initialBalance,
		dayStart:   now.Truncate(24 * time.Hour),
		dayStartEq: initialBalance,
	}
}

// ApplyFill applies an executed fill to the symbol's position. Buys add
// positive size, sells negative. Reducing or flipping the position realizes
// PnL for the closed portion; a flip carries the remainder at the fill price.
func (l *Ledger) ApplyFill(symbol string, buy bool, size, price, fee float64) {
	if size <= 0 || price <= 0 {
		return
	}
	delta := size
	if !buy {
		delta = -size
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	p, ok := l.positions[symbol]
	if !ok || p.Status == StatusClosed && p.Size == 0 {
		if !ok {
			p = &Position{Symbol: symbol}
			l.positions[symbol] = p
		}
		// fresh position, or re-opening a closed symbol; realized PnL
		// and fees carry across for audit
		p.Size = delta
		p.EntryPrice = price
		p.MarkPrice = price
		p.Fees += fee
		p.Status = StatusOpen
		p.OpenedAt = now
		p.UpdatedAt = now
		p.recomputeUnrealized()
		l.rollDayLocked(now)
		l.trackEquityLocked()
		return
	}

	sameDirection := (p.Size > 0) == (delta > 0) || p.Size == 0
	if sameDirection {
		p.EntryPrice = trading.VWAP(math.Abs(p.Size), p.EntryPrice, size, price)
		p.Size += delta
	} else {
		closed := math.Min(size, math.Abs(p.Size))
		if p.Size > 0 {
			p.RealizedPnL += closed * (price - p.EntryPrice)
		} else {
			p.RealizedPnL += closed * (p.EntryPrice - price)
		}
		remainder := size - closed
		p.Size += delta
		if remainder > 0 {
			// flipped through zero; remainder opens at the fill price
			p.EntryPrice = price
			p.OpenedAt = now
		}
		if almostZero(p.Size) {
			p.Size = 0
			p.Status = StatusClosed
			p.StopLoss = 0
			p.TakeProfit = 0
			logger.Infof("position closed: %s realized=%.4f fees=%.4f", symbol, p.RealizedPnL, p.Fees)
		}
	}
	p.Fees += fee
	p.MarkPrice = price
	p.UpdatedAt = now
	p.recomputeUnrealized()
	l.rollDayLocked(now)
	l.trackEquityLocked()
}

// MarkPrice updates the mark price and recomputes unrealized PnL.
// Applying the same tick twice is a no-op beyond the timestamp; realized
// PnL is never touched.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return
	}
	p.MarkPrice = price
	p.UpdatedAt = time.Now()
	p.recomputeUnrealized()
	l.trackEquityLocked()
}

// SetExitLevels stores the reactive stop-loss and take-profit levels for an
// open position. Zero clears a level.
func (l *Ledger) SetExitLevels(symbol string, stop, take float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[symbol]; ok && p.Status == StatusOpen {
		p.StopLoss = stop
		p.TakeProfit = take
		p.UpdatedAt = time.Now()
	}
}

// Get returns a copy of the symbol's position.
func (l *Ledger) Get(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// All returns copies of every position, open and closed.
func (l *Ledger) All() map[string]Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Position, len(l.positions))
	for sym, p := range l.positions {
		out[sym] = *p
	}
	return out
}

// Open returns copies of open positions with non-zero size.
func (l *Ledger) Open() map[string]Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Position)
	for sym, p := range l.positions {
		if p.Status == StatusOpen && p.Size != 0 {
			out[sym] = *p
		}
	}
	return out
}

// TotalBalance returns account equity: cash plus realized and unrealized
// PnL across all symbols, net of fees.
func (l *Ledger) TotalBalance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked()
}

func (l *Ledger) equityLocked() float64 {
	eq := l.cash
	for _, p := range l.positions {
		eq += p.RealizedPnL + p.UnrealizedPnL - p.Fees
	}
	return eq
}

// DailyPnL returns equity change since the start of the current UTC day.
func (l *Ledger) DailyPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked(time.Now())
	return l.equityLocked() - l.dayStartEq
}

// Drawdown returns the current peak-to-trough equity decline as a fraction
// of the running peak.
func (l *Ledger) Drawdown() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.equityPeak <= 0 {
		return 0
	}
	dd := (l.equityPeak - l.equityLocked()) / l.equityPeak
	if dd < 0 {
		return 0
	}
	return dd
}

func (l *Ledger) trackEquityLocked() {
	if eq := l.equityLocked(); eq > l.equityPeak {
		l.equityPeak = eq
	}
}

func (l *Ledger) rollDayLocked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if day.After(l.dayStart) {
		l.dayStart = day
		l.dayStartEq = l.equityLocked()
	}
}

func almostZero(v float64) bool { return math.Abs(v) < 1e-9 }
