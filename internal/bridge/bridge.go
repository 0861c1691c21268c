package bridge

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"riptide/internal/config"
	"riptide/internal/events"
	"riptide/internal/exchange"
	"riptide/internal/feed"
	"riptide/internal/logger"
	"riptide/internal/order"
	"riptide/internal/pkg/circuit"
	"riptide/internal/pkg/trading"
	"riptide/internal/position"
	"riptide/internal/risk"
	"riptide/internal/signal"
)

type Options struct {
	Trading   config.TradingConfig
	Risk      *risk.Manager
	Orders    *order.Engine
	Ledger    *position.Ledger
	Submitter exchange.Submitter
	Bus       *events.Bus
	Window    *feed.Window
	// QuoteSink receives every tick after bookkeeping; the paper executor
	// hangs off this to refresh its fill quotes.
	QuoteSink func(symbol string, price float64)
}

// Bridge owns the execution queue, the worker pool and the reactive
// stop/take-profit triggering.
type Bridge struct {
	cfg    config.TradingConfig
	risk   *risk.Manager
	orders *order.Engine
	ledger *position.Ledger
	sub    exchange.Submitter
	bus    *events.Bus
	window *feed.Window
	sink   func(string, float64)

	queue   chan *Request
	breaker *circuit.Breaker

	stopped atomic.Bool

	quoteMu sync.RWMutex
	quotes  map[string]float64

	// in-flight requests visible to the watchdog
	flightMu sync.Mutex
	inflight map[string]*flight

	// per-symbol serialization, active only when configured
	laneMu sync.Mutex
	lanes  map[string]*sync.Mutex

	received atomic.Uint64
	executed atomic.Uint64
	rejected atomic.Uint64
	placed   atomic.Uint64
	filled   atomic.Uint64
	timeouts atomic.Uint64

	latMu sync.Mutex
	latMs float64
}

type flight struct {
	req      *Request
	cancel   func()
	deadline time.Time
	timedOut atomic.Bool
}

func New(opts Options) *Bridge {
	cfg := opts.Trading
	if cfg.MaxConcurrentExecutions <= 0 {
		cfg.MaxConcurrentExecutions = 5
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1000
	}
	if cfg.ExecutionTimeoutSeconds <= 0 {
		cfg.ExecutionTimeoutSeconds = 30
	}
	return &Bridge{
		cfg:      cfg,
		risk:     opts.Risk,
		orders:   opts.Orders,
		ledger:   opts.Ledger,
		sub:      opts.Submitter,
		bus:      opts.Bus,
		window:   opts.Window,
		sink:     opts.QuoteSink,
		queue:    make(chan *Request, cfg.QueueCapacity),
		breaker:  circuit.NewBreaker("exchange-submit", 5, 30*time.Second),
		quotes:   make(map[string]float64),
		inflight: make(map[string]*flight),
		lanes:    make(map[string]*sync.Mutex),
	}
}

// Submit enqueues a signal for execution. It never blocks: a saturated
// queue returns ErrQueueFull immediately.
func (b *Bridge) Submit(sig signal.Signal) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	b.received.Add(1)

	req := &Request{
		ID:         uuid.NewString(),
		Signal:     sig,
		Price:      b.Quote(sig.Symbol),
		EnqueuedAt: time.Now(),
	}
	if p, ok := b.ledger.Get(sig.Symbol); ok {
		req.PositionSize = p.Size
	}

	select {
	case b.queue <- req:
		return nil
	default:
		b.rejected.Add(1)
		logger.Warnf("execution queue full (%d), dropping signal %s for %s", cap(b.queue), sig.ID, sig.Symbol)
		return ErrQueueFull
	}
}

// Quote returns the last observed price for symbol, 0 when unseen.
func (b *Bridge) Quote(symbol string) float64 {
	b.quoteMu.RLock()
	defer b.quoteMu.RUnlock()
	return b.quotes[symbol]
}

// OnTick is the market data entry point: records history, refreshes marks,
// forwards the quote, then checks reactive exit levels.
func (b *Bridge) OnTick(t feed.Tick) {
	if t.Price <= 0 {
		return
	}
	b.quoteMu.Lock()
	b.quotes[t.Symbol] = t.Price
	b.quoteMu.Unlock()

	if b.window != nil {
		b.window.Observe(t)
	}
	b.ledger.MarkPrice(t.Symbol, t.Price)
	if b.sink != nil {
		b.sink(t.Symbol, t.Price)
	}
	b.checkExitLevels(t.Symbol, t.Price)
}

// RequestClose unwinds a fraction of the open position through the normal
// pipeline. The risk manager's emergency path calls this.
func (b *Bridge) RequestClose(symbol string, ratio float64, reason string) {
	if err := b.requestClose(symbol, ratio, reason); err != nil {
		logger.Errorf("close request for %s failed: %v", symbol, err)
	}
}

func (b *Bridge) requestClose(symbol string, ratio float64, reason string) error {
	p, ok := b.ledger.Get(symbol)
	if !ok || p.Size == 0 {
		return nil
	}
	size := trading.CalcCloseAmount(math.Abs(p.Size), ratio)
	if size <= 0 {
		return nil
	}
	action := signal.ActionCloseLong
	if !p.Long() {
		action = signal.ActionCloseShort
	}
	sig := signal.Signal{
		ID:     uuid.NewString(),
		Symbol: symbol,
		Action: action,
		Size:   size,
		Reason: reason,
		At:     time.Now(),
	}
	return b.Submit(sig)
}

// checkExitLevels emits synthetic close orders when a stored stop-loss or
// take-profit level is breached. Levels are cleared before submission so a
// burst of ticks cannot double-fire.
func (b *Bridge) checkExitLevels(symbol string, price float64) {
	p, ok := b.ledger.Get(symbol)
	if !ok || p.Size == 0 || p.Status != position.StatusOpen {
		return
	}

	var kind events.Kind
	var reason string
	switch {
	case p.StopLoss > 0 && (p.Long() && price <= p.StopLoss || !p.Long() && price >= p.StopLoss):
		kind, reason = events.KindStopTriggered, "stop loss triggered"
	case p.TakeProfit > 0 && (p.Long() && price >= p.TakeProfit || !p.Long() && price <= p.TakeProfit):
		kind, reason = events.KindTakeProfitHit, "take profit reached"
	default:
		return
	}

	b.ledger.SetExitLevels(symbol, 0, 0)
	logger.Infof("%s at %.4f for %s, closing position", reason, price, symbol)
	if b.bus != nil {
		b.bus.Publish(events.Event{Kind: kind, Symbol: symbol, Payload: p})
	}
	if err := b.requestClose(symbol, 1, reason); err != nil {
		// keep the protective levels armed so a later tick retries
		b.ledger.SetExitLevels(symbol, p.StopLoss, p.TakeProfit)
		logger.Errorf("exit close for %s failed, levels restored: %v", symbol, err)
	}
}

// Metrics returns a snapshot of the running counters.
func (b *Bridge) Metrics() Metrics {
	m := Metrics{
		SignalsReceived: b.received.Load(),
		SignalsExecuted: b.executed.Load(),
		SignalsRejected: b.rejected.Load(),
		OrdersPlaced:    b.placed.Load(),
		OrdersFilled:    b.filled.Load(),
		Timeouts:        b.timeouts.Load(),
		QueueDepth:      len(b.queue),
		BreakerState:    b.breaker.State().String(),
	}
	b.latMu.Lock()
	m.AvgLatencyMs = b.latMs
	b.latMu.Unlock()
	if done := m.SignalsExecuted + m.SignalsRejected; done > 0 {
		m.SuccessRate = float64(m.SignalsExecuted) / float64(done)
	}
	return m
}

func (b *Bridge) observeLatency(d time.Duration) {
	const alpha = 0.2
	ms := float64(d.Milliseconds())
	b.latMu.Lock()
	if b.latMs == 0 {
		b.latMs = ms
	} else {
		b.latMs = alpha*ms + (1-alpha)*b.latMs
	}
	b.latMu.Unlock()
}

func (b *Bridge) lane(symbol string) *sync.Mutex {
	b.laneMu.Lock()
	defer b.laneMu.Unlock()
	mu, ok := b.lanes[symbol]
	if !ok {
		mu = &sync.Mutex{}
		b.lanes[symbol] = mu
	}
	return mu
}
