// Package order owns the order lifecycle: creation, submission, fill
// application and terminal transitions. Orders are owned by the engine while
// open; callers always receive copies.
package order

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type Type string

const (
	TypeMarket Type = "market"
	TypeLimit  Type = "limit"
	TypeStop   Type = "stop"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusSubmitted       Status = "submitted"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

// Terminal reports whether no further transitions are legal from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Active reports whether the order can still receive fills or be cancelled.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusPartiallyFilled:
		return true
	}
	return false
}

type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Type        Type
	Size        float64 // requested size
	Price       float64 // limit price, 0 for market orders
	StopLoss    float64 // 0 if not set
	TakeProfit  float64 // 0 if not set
	TimeInForce string

	Status       Status
	FilledSize   float64
	AvgFillPrice float64
	Fees         float64
	Slippage     float64 // total adverse price adjustment applied on market fills

	SignalID  string // originating signal, empty for synthetic exit orders
	Reason    string // entry/exit tag, e.g. "signal", "stop_loss", "take_profit"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() float64 { return o.Size - o.FilledSize }

// FillRatio returns filled/requested in [0,1].
func (o *Order) FillRatio() float64 {
	if o.Size <= 0 {
		return 0
	}
	return o.FilledSize / o.Size
}

// Stats aggregates engine-level order counters.
type Stats struct {
	Total     int     `json:"total"`
	Active    int     `json:"active"`
	Filled    int     `json:"filled"`
	Cancelled int     `json:"cancelled"`
	Rejected  int     `json:"rejected"`
	FillRate  float64 `json:"fill_rate"`
}
