package order

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"riptide/internal/logger"
	"riptide/internal/pkg/trading"
)

// Config carries the fill cost model for market executions.
type Config struct {
	SlippageRate   float64
	CommissionRate float64
}

// Engine is the order state machine. All mutation is serialized under the
// engine lock; every Order handed out is a copy.
type Engine struct {
	cfg Config

	mu     sync.RWMutex
	orders map[string]*Order
	// fill ids already applied, per order. Exchanges may deliver the same
	// fill more than once; replays are absorbed here.
	appliedFills map[string]map[string]struct{}
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:          cfg,
		orders:       make(map[string]*Order),
		appliedFills: make(map[string]map[string]struct{}),
	}
}

// Create registers a new order in Pending state and returns a copy.
func (e *Engine) Create(o Order) (Order, error) {
	if !o.Side.Valid() {
		return Order{}, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusPending}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.TimeInForce == "" {
		o.TimeInForce = "GTC"
	}
	now := time.Now()
	o.Status = StatusPending
	o.FilledSize = 0
	o.AvgFillPrice = 0
	o.Fees = 0
	o.CreatedAt = now
	o.UpdatedAt = now

	e.mu.Lock()
	e.orders[o.ID] = &o
	e.appliedFills[o.ID] = make(map[string]struct{})
	e.mu.Unlock()

	cp := o
	return cp, nil
}

// MarkSubmitted moves a Pending order to Submitted after the exchange
// accepted it.
func (e *Engine) MarkSubmitted(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPending {
		return &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusSubmitted}
	}
	o.Status = StatusSubmitted
	o.UpdatedAt = time.Now()
	return nil
}

// ApplyFill applies an execution report. fillID de-duplicates replayed
// deliveries: a fill id seen before is a no-op. Status moves to
// PartiallyFilled or Filled depending on the remaining size.
func (e *Engine) ApplyFill(orderID, fillID string, size, price, fee float64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if fillID != "" {
		if _, seen := e.appliedFills[orderID][fillID]; seen {
			cp := *o
			return cp, nil
		}
	}
	if !o.Status.Active() {
		return Order{}, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusFilled}
	}
	if size <= 0 || o.FilledSize+size > o.Size+sizeEpsilon {
		return Order{}, ErrOverfill
	}

	o.AvgFillPrice = trading.VWAP(o.FilledSize, o.AvgFillPrice, size, price)
	o.FilledSize += size
	if o.FilledSize > o.Size {
		o.FilledSize = o.Size
	}
	o.Fees += fee
	if o.Remaining() <= sizeEpsilon {
		o.FilledSize = o.Size
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedAt = time.Now()
	if fillID != "" {
		e.appliedFills[orderID][fillID] = struct{}{}
	}

	cp := *o
	return cp, nil
}

// ExecuteMarket fills a market order in full at the quoted price adjusted
// for slippage, charging commission on the fill value. It returns the fill
// that was applied so callers can forward it to the position ledger.
func (e *Engine) ExecuteMarket(orderID string, quote float64) (Order, error) {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	if !ok {
		e.mu.RUnlock()
		return Order{}, ErrNotFound
	}
	side := o.Side
	remaining := o.Remaining()
	e.mu.RUnlock()

	fillPrice := trading.SlippagePrice(quote, e.cfg.SlippageRate, side == SideBuy)
	fee := trading.Fee(remaining, fillPrice, e.cfg.CommissionRate)

	filled, err := e.ApplyFill(orderID, uuid.NewString(), remaining, fillPrice, fee)
	if err != nil {
		return Order{}, err
	}

	e.mu.Lock()
	if cur, ok := e.orders[orderID]; ok {
		cur.Slippage += quote * e.cfg.SlippageRate
		filled.Slippage = cur.Slippage
	}
	e.mu.Unlock()
	return filled, nil
}

// Cancel is legal from Pending, Submitted and PartiallyFilled only.
func (e *Engine) Cancel(orderID string) error {
	return e.terminate(orderID, StatusCancelled)
}

// Reject marks an order Rejected, recording the reason.
func (e *Engine) Reject(orderID, reason string) error {
	e.mu.Lock()
	if o, ok := e.orders[orderID]; ok && reason != "" {
		o.Reason = reason
	}
	e.mu.Unlock()
	return e.terminate(orderID, StatusRejected)
}

// Expire marks an order Expired (time-in-force elapsed).
func (e *Engine) Expire(orderID string) error {
	return e.terminate(orderID, StatusExpired)
}

func (e *Engine) terminate(orderID string, to Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if !o.Status.Active() {
		return &InvalidTransitionError{OrderID: orderID, From: o.Status, To: to}
	}
	logger.Debugf("order %s: %s -> %s", orderID, o.Status, to)
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

// Get returns a copy of the order.
func (e *Engine) Get(orderID string) (Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	cp := *o
	return cp, nil
}

// BySymbol returns copies of all orders for symbol, oldest first.
func (e *Engine) BySymbol(symbol string) []Order {
	return e.filter(func(o *Order) bool { return o.Symbol == symbol })
}

// ByStatus returns copies of all orders in the given status, oldest first.
func (e *Engine) ByStatus(status Status) []Order {
	return e.filter(func(o *Order) bool { return o.Status == status })
}

// Active returns copies of all orders that can still fill, oldest first.
func (e *Engine) Active() []Order {
	return e.filter(func(o *Order) bool { return o.Status.Active() })
}

func (e *Engine) filter(keep func(*Order) bool) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Order
	for _, o := range e.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats returns aggregate counters including the overall fill rate.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{Total: len(e.orders)}
	for _, o := range e.orders {
		switch {
		case o.Status.Active():
			s.Active++
		case o.Status == StatusFilled:
			s.Filled++
		case o.Status == StatusCancelled:
			s.Cancelled++
		case o.Status == StatusRejected:
			s.Rejected++
		}
	}
	if s.Total > 0 {
		s.FillRate = float64(s.Filled) / float64(s.Total)
	}
	return s
}

const sizeEpsilon = 1e-9
