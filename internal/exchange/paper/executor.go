// Package paper is the simulated exchange: market orders fill immediately
// at the last observed price with the configured slippage and commission.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"riptide/internal/exchange"
	"riptide/internal/logger"
	"riptide/internal/order"
	"riptide/internal/pkg/trading"
)

type Config struct {
	SlippageRate   float64
	CommissionRate float64
	// FillDelay simulates exchange latency between acceptance and the
	// execution report. Zero delivers synchronously on a goroutine.
	FillDelay time.Duration
}

type Executor struct {
	cfg Config

	mu     sync.RWMutex
	quotes map[string]float64
	closed bool

	fills chan exchange.Fill
	wg    sync.WaitGroup
}

func New(cfg Config) *Executor {
	return &Executor{
		cfg:    cfg,
		quotes: make(map[string]float64),
		fills:  make(chan exchange.Fill, 256),
	}
}

// OnTick records the latest price used to fill subsequent market orders.
func (e *Executor) OnTick(symbol string, price float64) {
	if price <= 0 {
		return
	}
	e.mu.Lock()
	e.quotes[symbol] = price
	e.mu.Unlock()
}

func (e *Executor) PlaceOrder(ctx context.Context, o order.Order) error {
	e.mu.RLock()
	quote, ok := e.quotes[o.Symbol]
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return fmt.Errorf("paper executor closed")
	}
	if !ok {
		// limit orders may carry their own price before any tick arrives
		if o.Price <= 0 {
			return fmt.Errorf("no quote for %s", o.Symbol)
		}
		quote = o.Price
	}

	fillPrice := trading.SlippagePrice(quote, e.cfg.SlippageRate, o.Side == order.SideBuy)
	fill := exchange.Fill{
		OrderID: o.ID,
		FillID:  uuid.NewString(),
		Symbol:  o.Symbol,
		Size:    o.Remaining(),
		Price:   fillPrice,
		Fee:     trading.Fee(o.Remaining(), fillPrice, e.cfg.CommissionRate),
		At:      time.Now(),
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// an accepted order owes its fill; the delay is the exchange's
		// clock, not the caller's, so the request context does not apply
		if e.cfg.FillDelay > 0 {
			time.Sleep(e.cfg.FillDelay)
		}
		e.mu.RLock()
		closed := e.closed
		e.mu.RUnlock()
		if closed {
			return
		}
		select {
		case e.fills <- fill:
		default:
			logger.Warnf("paper fill channel full, dropping fill for order %s", fill.OrderID)
		}
	}()
	return nil
}

func (e *Executor) Fills() <-chan exchange.Fill { return e.fills }

func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	close(e.fills)
	return nil
}
