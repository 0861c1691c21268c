// Package bridge turns admitted signals into orders through a bounded
// worker pool. Concurrency never exceeds the configured pool size; a full
// queue pushes back on the caller instead of blocking.
package bridge

import (
	"errors"
	"time"

	"riptide/internal/signal"
)

var (
	// ErrQueueFull is the backpressure signal: the caller should retry
	// later or drop the signal, never wait.
	ErrQueueFull = errors.New("bridge: execution queue full")
	// ErrStopped is returned once shutdown has begun.
	ErrStopped = errors.New("bridge: stopped")
)

// Request is one unit of work on the execution queue.
type Request struct {
	ID           string
	Signal       signal.Signal
	Price        float64 // quote captured at submit time
	PositionSize float64 // signed position size at submit time
	EnqueuedAt   time.Time
}

// Metrics are the bridge's running counters. Latency is an exponential
// moving average over completed requests.
type Metrics struct {
	SignalsReceived uint64  `json:"signals_received"`
	SignalsExecuted uint64  `json:"signals_executed"`
	SignalsRejected uint64  `json:"signals_rejected"`
	OrdersPlaced    uint64  `json:"orders_placed"`
	OrdersFilled    uint64  `json:"orders_filled"`
	Timeouts        uint64  `json:"timeouts"`
	QueueDepth      int     `json:"queue_depth"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	SuccessRate     float64 `json:"success_rate"`
	BreakerState    string  `json:"breaker_state"`
}
