package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"riptide/internal/config"
	"riptide/internal/events"
	"riptide/internal/exchange"
	"riptide/internal/exchange/paper"
	"riptide/internal/feed"
	"riptide/internal/order"
	"riptide/internal/position"
	"riptide/internal/risk"
	"riptide/internal/signal"
)

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		MaxConcurrentExecutions: 2,
		QueueCapacity:           32,
		ExecutionTimeoutSeconds: 5,
		RetryAttempts:           1,
		RiskPerTrade:            0.02,
		DefaultStopLoss:         0.02,
		DefaultTakeProfit:       0.04,
		InitialBalance:          10000,
	}
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSize: 0.1,
		MaxDailyLoss:    0.05,
		MaxDrawdown:     0.2,
		MaxLeverage:     3.0,
		MaxCorrelation:  0.7,
	}
}

type harness struct {
	bridge *Bridge
	engine *order.Engine
	ledger *position.Ledger
	exec   *paper.Executor
	cancel context.CancelFunc
	done   chan struct{}
}

func newHarness(t *testing.T, tc config.TradingConfig) *harness {
	t.Helper()
	ledger := position.NewLedger(tc.InitialBalance)
	window := feed.NewWindow(128)
	engine := order.NewEngine(order.Config{SlippageRate: tc.SlippageRate, CommissionRate: tc.CommissionRate})
	exec := paper.New(paper.Config{SlippageRate: tc.SlippageRate, CommissionRate: tc.CommissionRate})
	rm := risk.NewManager(risk.Options{
		Ledger:  ledger,
		History: window,
		Limits:  testRiskConfig(),
	})
	b := New(Options{
		Trading:   tc,
		Risk:      rm,
		Orders:    engine,
		Ledger:    ledger,
		Submitter: exec,
		Bus:       events.NewBus(),
		Window:    window,
		QuoteSink: exec.OnTick,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	h := &harness{bridge: b, engine: engine, ledger: ledger, exec: exec, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("bridge did not stop")
		}
	})
	return h
}

func (h *harness) tick(symbol string, price float64) {
	h.bridge.OnTick(feed.Tick{Symbol: symbol, Price: price, At: time.Now()})
}

func TestSignalBecomesPosition(t *testing.T) {
	h := newHarness(t, testTradingConfig())
	h.tick("BTCUSDT", 100)

	err := h.bridge.Submit(signal.Signal{ID: "s1", Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 2})
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		p, ok := h.ledger.Get("BTCUSDT")
		return ok && p.Size == 2
	}, 3*time.Second, 10*time.Millisecond)

	m := h.bridge.Metrics()
	assert.Equal(t, uint64(1), m.SignalsReceived)
	assert.Equal(t, uint64(1), m.SignalsExecuted)
	assert.Equal(t, uint64(1), m.OrdersPlaced)

	p, _ := h.ledger.Get("BTCUSDT")
	assert.Greater(t, p.StopLoss, 0.0, "default stop attached on entry")
	assert.Greater(t, p.TakeProfit, p.StopLoss)
}

func TestOversizedSignalReduced(t *testing.T) {
	h := newHarness(t, testTradingConfig())
	h.tick("BTCUSDT", 100)

	// budget is 10% of 10k = 1000 notional; 20 @ 100 = 2000 -> reduced to 10
	assert.NoError(t, h.bridge.Submit(signal.Signal{ID: "s1", Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 20}))

	assert.Eventually(t, func() bool {
		p, ok := h.ledger.Get("BTCUSDT")
		return ok && p.Size > 0
	}, 3*time.Second, 10*time.Millisecond)

	p, _ := h.ledger.Get("BTCUSDT")
	assert.InDelta(t, 10.0, p.Size, 1e-9)
}

func TestQueueFullBackpressure(t *testing.T) {
	tc := testTradingConfig()
	tc.QueueCapacity = 1
	// no Run: queue stays full
	b := New(Options{
		Trading:   tc,
		Risk:      risk.NewManager(risk.Options{Ledger: position.NewLedger(10000), History: feed.NewWindow(8), Limits: testRiskConfig()}),
		Orders:    order.NewEngine(order.Config{}),
		Ledger:    position.NewLedger(10000),
		Submitter: paper.New(paper.Config{}),
	})

	sig := signal.Signal{Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 1, Price: 100}
	assert.NoError(t, b.Submit(sig))

	start := time.Now()
	err := b.Submit(sig)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "backpressure must be immediate")
}

func TestExitLevelsSurviveFullQueue(t *testing.T) {
	tc := testTradingConfig()
	tc.QueueCapacity = 1
	ledger := position.NewLedger(10000)
	// no Run: the queue stays full, so the synthetic close cannot enqueue
	b := New(Options{
		Trading:   tc,
		Risk:      risk.NewManager(risk.Options{Ledger: ledger, History: feed.NewWindow(8), Limits: testRiskConfig()}),
		Orders:    order.NewEngine(order.Config{}),
		Ledger:    ledger,
		Submitter: paper.New(paper.Config{}),
	})

	ledger.ApplyFill("BTCUSDT", true, 1, 100, 0)
	ledger.SetExitLevels("BTCUSDT", 95, 120)
	assert.NoError(t, b.Submit(signal.Signal{Symbol: "ETHUSDT", Action: signal.ActionOpenLong, Size: 1, Price: 50}))

	b.OnTick(feed.Tick{Symbol: "BTCUSDT", Price: 94, At: time.Now()})

	p, ok := ledger.Get("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 95.0, p.StopLoss, "stop stays armed when the close cannot be queued")
	assert.Equal(t, 120.0, p.TakeProfit)
}

type stalledSubmitter struct {
	fills     chan exchange.Fill
	closeOnce sync.Once
}

func newStalledSubmitter() *stalledSubmitter {
	return &stalledSubmitter{fills: make(chan exchange.Fill)}
}

func (s *stalledSubmitter) PlaceOrder(ctx context.Context, _ order.Order) error {
	<-ctx.Done()
	return ctx.Err()
}
func (s *stalledSubmitter) Fills() <-chan exchange.Fill { return s.fills }
func (s *stalledSubmitter) Close() error {
	s.closeOnce.Do(func() { close(s.fills) })
	return nil
}

func TestExecutionTimeoutFreesWorker(t *testing.T) {
	tc := testTradingConfig()
	tc.MaxConcurrentExecutions = 1
	tc.ExecutionTimeoutSeconds = 0.2

	ledger := position.NewLedger(tc.InitialBalance)
	window := feed.NewWindow(8)
	b := New(Options{
		Trading:   tc,
		Risk:      risk.NewManager(risk.Options{Ledger: ledger, History: window, Limits: testRiskConfig()}),
		Orders:    order.NewEngine(order.Config{}),
		Ledger:    ledger,
		Submitter: newStalledSubmitter(),
		Window:    window,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	b.OnTick(feed.Tick{Symbol: "BTCUSDT", Price: 100, At: time.Now()})
	assert.NoError(t, b.Submit(signal.Signal{ID: "s1", Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 1}))
	assert.NoError(t, b.Submit(signal.Signal{ID: "s2", Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 1}))

	// the lone worker must process both: each times out and frees the slot
	assert.Eventually(t, func() bool {
		return b.Metrics().Timeouts == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCloseWithoutPositionRejected(t *testing.T) {
	h := newHarness(t, testTradingConfig())
	h.tick("BTCUSDT", 100)

	assert.NoError(t, h.bridge.Submit(signal.Signal{ID: "s1", Symbol: "BTCUSDT", Action: signal.ActionCloseLong}))

	assert.Eventually(t, func() bool {
		return h.bridge.Metrics().SignalsRejected == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, h.bridge.Metrics().OrdersPlaced, "zero-size request must never reach submission")
}

func TestStopLossTriggersClose(t *testing.T) {
	h := newHarness(t, testTradingConfig())
	h.tick("BTCUSDT", 100)

	assert.NoError(t, h.bridge.Submit(signal.Signal{
		ID: "s1", Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 1, StopLoss: 95, TakeProfit: 120,
	}))
	assert.Eventually(t, func() bool {
		p, ok := h.ledger.Get("BTCUSDT")
		return ok && p.Size == 1 && p.StopLoss == 95
	}, 3*time.Second, 10*time.Millisecond)

	// price crashes through the stop
	h.tick("BTCUSDT", 94)

	assert.Eventually(t, func() bool {
		p, _ := h.ledger.Get("BTCUSDT")
		return p.Size == 0 && p.Status == position.StatusClosed
	}, 3*time.Second, 10*time.Millisecond)

	p, _ := h.ledger.Get("BTCUSDT")
	assert.InDelta(t, -6.0, p.RealizedPnL, 0.5, "loss realized near the stop level")
}

func TestTakeProfitTriggersClose(t *testing.T) {
	h := newHarness(t, testTradingConfig())
	h.tick("ETHUSDT", 100)

	assert.NoError(t, h.bridge.Submit(signal.Signal{
		ID: "s1", Symbol: "ETHUSDT", Action: signal.ActionOpenLong, Size: 1, StopLoss: 90, TakeProfit: 110,
	}))
	assert.Eventually(t, func() bool {
		p, ok := h.ledger.Get("ETHUSDT")
		return ok && p.Size == 1
	}, 3*time.Second, 10*time.Millisecond)

	h.tick("ETHUSDT", 111)

	assert.Eventually(t, func() bool {
		p, _ := h.ledger.Get("ETHUSDT")
		return p.Size == 0
	}, 3*time.Second, 10*time.Millisecond)

	p, _ := h.ledger.Get("ETHUSDT")
	assert.Greater(t, p.RealizedPnL, 0.0)
}

func TestShutdownFlattensPositions(t *testing.T) {
	h := newHarness(t, testTradingConfig())
	h.tick("BTCUSDT", 100)

	assert.NoError(t, h.bridge.Submit(signal.Signal{ID: "s1", Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 1}))
	assert.Eventually(t, func() bool {
		p, ok := h.ledger.Get("BTCUSDT")
		return ok && p.Size == 1
	}, 3*time.Second, 10*time.Millisecond)

	h.cancel()
	select {
	case <-h.done:
	case <-time.After(10 * time.Second):
		t.Fatal("bridge did not stop")
	}

	p, _ := h.ledger.Get("BTCUSDT")
	assert.Equal(t, 0.0, p.Size)
	assert.Equal(t, position.StatusClosed, p.Status)

	// Submit after shutdown is refused
	assert.ErrorIs(t, h.bridge.Submit(signal.Signal{Symbol: "BTCUSDT", Action: signal.ActionOpenLong, Size: 1}), ErrStopped)
}
