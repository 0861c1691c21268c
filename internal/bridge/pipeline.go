package bridge

import (
	"context"
	"fmt"
	"math"
	"time"

	"riptide/internal/events"
	"riptide/internal/logger"
	"riptide/internal/order"
	"riptide/internal/pkg/trading"
	"riptide/internal/risk"
	"riptide/internal/signal"
)

// execute runs the five-stage pipeline for one request: risk check, order
// parameter calculation, order construction, submission, result recording.
// A rejection at any stage is a normal outcome and ends the request.
func (b *Bridge) execute(ctx context.Context, req *Request) {
	start := time.Now()

	if b.cfg.SerializePerSymbol {
		mu := b.lane(req.Signal.Symbol)
		mu.Lock()
		defer mu.Unlock()
	}

	sig := req.Signal
	price := b.Quote(sig.Symbol)
	if price <= 0 {
		price = req.Price
	}
	if price <= 0 && sig.Price > 0 {
		price = sig.Price
	}
	if price <= 0 {
		b.reject(req, nil, "no price available for "+sig.Symbol)
		return
	}

	side := order.SideBuy
	if !sig.Action.Long() {
		side = order.SideSell
	}

	// stage 1: admission
	size := b.initialSize(sig, price)
	if size <= 0 {
		b.reject(req, nil, "computed size is zero")
		return
	}
	var res risk.CheckResult
	if sig.Action.Entry() {
		res = b.risk.CheckTradingRisk(ctx, sig.Symbol, side, size, price)
		if !res.Approved {
			b.reject(req, nil, res.Reason)
			return
		}
		if res.Action == risk.ActionReduce {
			size = res.SuggestedSize
		}
	}
	if size <= 0 {
		b.reject(req, nil, "size reduced to zero by risk limits")
		return
	}
	if ctxExpired(ctx) {
		b.finishTimeout(req, nil)
		return
	}

	// stage 2: order parameters
	stop, take := sig.StopLoss, sig.TakeProfit
	if sig.Action.Entry() && (stop == 0 || take == 0) {
		defStop, defTake := trading.StopLevels(price, b.cfg.DefaultStopLoss, b.cfg.DefaultTakeProfit, sig.Action.Long())
		if stop == 0 {
			stop = defStop
		}
		if take == 0 {
			take = defTake
		}
	}

	// stage 3: construction
	o, err := b.orders.Create(order.Order{
		Symbol:     sig.Symbol,
		Side:       side,
		Type:       order.TypeMarket,
		Size:       size,
		StopLoss:   stop,
		TakeProfit: take,
		SignalID:   sig.ID,
		Reason:     sig.Reason,
	})
	if err != nil {
		b.reject(req, nil, fmt.Sprintf("order construction failed: %v", err))
		return
	}
	if b.bus != nil {
		b.bus.Publish(events.Event{Kind: events.KindOrderCreated, Symbol: o.Symbol, Payload: o})
	}

	// stage 4: submission with retry behind the breaker
	if err := b.submitWithRetry(ctx, o); err != nil {
		if ctxExpired(ctx) {
			b.finishTimeout(req, &o)
			return
		}
		b.reject(req, &o, fmt.Sprintf("submission failed: %v", err))
		return
	}
	if err := b.orders.MarkSubmitted(o.ID); err != nil {
		logger.Warnf("order %s submit transition: %v", o.ID, err)
	}
	b.placed.Add(1)
	if b.bus != nil {
		b.bus.Publish(events.Event{Kind: events.KindOrderSubmitted, Symbol: o.Symbol, Payload: o})
	}

	// stage 5: record
	b.executed.Add(1)
	b.observeLatency(time.Since(start))
	logger.Debugf("signal %s executed as order %s (%s %s %.6f @ ~%.4f)",
		sig.ID, o.ID, o.Side, o.Symbol, o.Size, price)
}

// initialSize resolves the requested size: an explicit signal size wins,
// otherwise risk-per-trade sizing against the stop distance, scaled by
// signal confidence when present.
func (b *Bridge) initialSize(sig signal.Signal, price float64) float64 {
	if !sig.Action.Entry() {
		p, ok := b.ledger.Get(sig.Symbol)
		if !ok || p.Size == 0 {
			return 0
		}
		current := math.Abs(p.Size)
		if sig.Size > 0 {
			return math.Min(sig.Size, current)
		}
		return current
	}

	size := sig.Size
	if size <= 0 {
		stopPct := b.cfg.DefaultStopLoss
		if stopPct <= 0 {
			stopPct = 0.02
		}
		riskBudget := b.ledger.TotalBalance() * b.cfg.RiskPerTrade
		size = riskBudget / (price * stopPct)
	}
	if sig.Confidence > 0 {
		size *= math.Min(sig.Confidence, 1)
	}
	return size
}

func (b *Bridge) submitWithRetry(ctx context.Context, o order.Order) error {
	attempts := b.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := 100 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.breaker.Allow() {
			return fmt.Errorf("submission breaker open")
		}
		if err := b.sub.PlaceOrder(ctx, o); err != nil {
			b.breaker.RecordFailure()
			lastErr = err
			logger.Warnf("place order %s attempt %d/%d: %v", o.ID, i+1, attempts, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		b.breaker.RecordSuccess()
		return nil
	}
	return lastErr
}

func (b *Bridge) reject(req *Request, o *order.Order, reason string) {
	b.rejected.Add(1)
	if o != nil {
		if err := b.orders.Reject(o.ID, reason); err != nil {
			logger.Debugf("reject order %s: %v", o.ID, err)
		}
	}
	logger.Infof("signal %s rejected: %s", req.Signal.ID, reason)
	if b.bus != nil {
		b.bus.Publish(events.Event{
			Kind:    events.KindOrderRejected,
			Symbol:  req.Signal.Symbol,
			Payload: map[string]any{"signal_id": req.Signal.ID, "reason": reason},
		})
	}
}

func (b *Bridge) finishTimeout(req *Request, o *order.Order) {
	b.timeouts.Add(1)
	b.rejected.Add(1)
	if o != nil {
		if err := b.orders.Reject(o.ID, "execution timeout"); err != nil {
			logger.Debugf("timeout reject order %s: %v", o.ID, err)
		}
	}
	logger.Warnf("signal %s timed out after %s", req.Signal.ID, b.cfg.ExecutionTimeout())
	if b.bus != nil {
		b.bus.Publish(events.Event{
			Kind:    events.KindOrderTimeout,
			Symbol:  req.Signal.Symbol,
			Payload: map[string]any{"signal_id": req.Signal.ID},
		})
	}
}

func ctxExpired(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
