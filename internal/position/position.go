// Package position is the position ledger: per-symbol signed size, volume
// weighted entry price, and realized/unrealized PnL. Positions are mutated
// only through the ledger; reads hand out copies.
package position

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Position holds per-symbol state. Size is signed: positive means long,
// negative means short. UnrealizedPnL is always derived from
// (Size, EntryPrice, MarkPrice) and never stored independently of them.
type Position struct {
	Symbol        string  `json:"symbol"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Fees          float64 `json:"fees"`
	Status        Status  `json:"status"`

	// Reactive exit levels, maintained by the execution bridge.
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Long reports whether the position is net long.
func (p *Position) Long() bool { return p.Size > 0 }

// Notional returns |size| * mark price.
func (p *Position) Notional() float64 {
	size := p.Size
	if size < 0 {
		size = -size
	}
	return size * p.MarkPrice
}

// unrealized recomputes the derived PnL. Signed size makes one formula
// cover both directions.
func (p *Position) recomputeUnrealized() {
	if p.Size == 0 || p.MarkPrice == 0 {
		p.UnrealizedPnL = 0
		return
	}
	p.UnrealizedPnL = p.Size * (p.MarkPrice - p.EntryPrice)
}
