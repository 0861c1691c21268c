package bridge

import (
	"context"
	"math"
	"sync"
	"time"

	"riptide/internal/events"
	"riptide/internal/exchange"
	"riptide/internal/logger"
	"riptide/internal/order"
)

const drainTimeout = 5 * time.Second

// Run starts the worker pool, the watchdog and the fill consumer, then
// blocks until the context is cancelled. Shutdown stops intake, drains the
// queue within a bound, flattens open positions and closes the submitter.
func (b *Bridge) Run(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	var wg sync.WaitGroup
	for i := 0; i < b.cfg.MaxConcurrentExecutions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			b.worker(workCtx, id)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.watchdog(workCtx)
	}()

	fillDone := make(chan struct{})
	go func() {
		defer close(fillDone)
		b.consumeFills(workCtx)
	}()

	logger.Infof("execution bridge running: workers=%d queue=%d timeout=%s",
		b.cfg.MaxConcurrentExecutions, cap(b.queue), b.cfg.ExecutionTimeout())

	<-ctx.Done()
	b.stopped.Store(true)

	deadline := time.Now().Add(drainTimeout)
	for len(b.queue) > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if n := len(b.queue); n > 0 {
		logger.Warnf("abandoning %d queued requests at shutdown", n)
	}

	cancelWork()
	wg.Wait()
	<-fillDone

	b.flattenPositions()
	if err := b.sub.Close(); err != nil {
		logger.Warnf("submitter close: %v", err)
	}
	logger.Infof("execution bridge stopped")
	return ctx.Err()
}

func (b *Bridge) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.queue:
			reqCtx, cancel := context.WithCancel(ctx)
			fl := &flight{req: req, cancel: cancel, deadline: time.Now().Add(b.cfg.ExecutionTimeout())}
			b.flightMu.Lock()
			b.inflight[req.ID] = fl
			b.flightMu.Unlock()

			b.execute(reqCtx, req)

			cancel()
			b.flightMu.Lock()
			delete(b.inflight, req.ID)
			b.flightMu.Unlock()
		}
	}
}

// watchdog cancels requests that blow their execution budget, freeing the
// worker for new work. The cancelled request reports itself as a timeout
// rejection on its way out.
func (b *Bridge) watchdog(ctx context.Context) {
	interval := b.cfg.ExecutionTimeout() / 4
	if interval <= 0 || interval > 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.flightMu.Lock()
			for id, fl := range b.inflight {
				if now.After(fl.deadline) && fl.timedOut.CompareAndSwap(false, true) {
					logger.Warnf("request %s exceeded execution budget, cancelling", id)
					fl.cancel()
				}
			}
			b.flightMu.Unlock()
		}
	}
}

func (b *Bridge) consumeFills(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-b.sub.Fills():
			if !ok {
				return
			}
			b.applyFill(fill)
		}
	}
}

// applyFill routes an execution report into the order engine and the
// position ledger, then publishes the resulting state.
func (b *Bridge) applyFill(fill exchange.Fill) {
	o, err := b.orders.ApplyFill(fill.OrderID, fill.FillID, fill.Size, fill.Price, fill.Fee)
	if err != nil {
		logger.Warnf("fill %s for order %s not applied: %v", fill.FillID, fill.OrderID, err)
		return
	}

	b.ledger.ApplyFill(o.Symbol, o.Side == order.SideBuy, fill.Size, fill.Price, fill.Fee)
	if o.Status == order.StatusFilled {
		b.filled.Add(1)
		// exit levels only ride on entry orders
		if o.StopLoss > 0 || o.TakeProfit > 0 {
			b.ledger.SetExitLevels(o.Symbol, o.StopLoss, o.TakeProfit)
		}
	}

	if b.bus != nil {
		b.bus.Publish(events.Event{Kind: events.KindOrderFilled, Symbol: o.Symbol, Payload: o})
		if p, ok := b.ledger.Get(o.Symbol); ok {
			b.bus.Publish(events.Event{Kind: events.KindPositionUpdate, Symbol: o.Symbol, Payload: p})
		}
	}
}

// flattenPositions closes whatever is still open at shutdown with local
// market executions so the ledger ends flat. A live submitter gets a
// best-effort close order first.
func (b *Bridge) flattenPositions() {
	for sym, p := range b.ledger.Open() {
		side := order.SideSell
		if !p.Long() {
			side = order.SideBuy
		}
		size := math.Abs(p.Size)
		quote := b.Quote(sym)
		if quote <= 0 {
			quote = p.MarkPrice
		}
		if quote <= 0 || size <= 0 {
			continue
		}

		o, err := b.orders.Create(order.Order{
			Symbol: sym,
			Side:   side,
			Type:   order.TypeMarket,
			Size:   size,
			Reason: "shutdown flatten",
		})
		if err != nil {
			logger.Errorf("shutdown close for %s: %v", sym, err)
			continue
		}

		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := b.sub.PlaceOrder(closeCtx, o); err != nil {
			logger.Warnf("shutdown close order for %s not accepted: %v", sym, err)
		}
		cancel()

		filled, err := b.orders.ExecuteMarket(o.ID, quote)
		if err != nil {
			logger.Errorf("shutdown execute for %s: %v", sym, err)
			continue
		}
		b.ledger.ApplyFill(sym, side == order.SideBuy, filled.FilledSize, filled.AvgFillPrice, filled.Fees)
		logger.Infof("shutdown: closed %s %.6f @ %.4f", sym, filled.FilledSize, filled.AvgFillPrice)
		if b.bus != nil {
			b.bus.Publish(events.Event{Kind: events.KindOrderFilled, Symbol: sym, Payload: filled})
		}
	}
}
