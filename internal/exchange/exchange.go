// Package exchange abstracts order submission. Implementations accept an
// order and report executions asynchronously on a fill channel; the bridge
// never parses exchange wire formats.
package exchange

import (
	"context"
	"time"

	"riptide/internal/order"
)

// Fill is one execution report. FillID de-duplicates replayed deliveries
// downstream; implementations must keep it stable for the same execution.
type Fill struct {
	OrderID string    `json:"order_id"`
	FillID  string    `json:"fill_id"`
	Symbol  string    `json:"symbol"`
	Size    float64   `json:"size"`
	Price   float64   `json:"price"`
	Fee     float64   `json:"fee"`
	At      time.Time `json:"at"`
}

// Submitter places orders and streams fills back. Fills may arrive out of
// submission order. Close releases the fill channel; no fills are
// delivered afterwards.
type Submitter interface {
	PlaceOrder(ctx context.Context, o order.Order) error
	Fills() <-chan Fill
	Close() error
}
