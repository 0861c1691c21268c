package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"riptide/internal/config"
	"riptide/internal/events"
	"riptide/internal/feed"
	"riptide/internal/order"
	"riptide/internal/position"
)

func defaultLimits() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSize: 0.1,
		MaxDailyLoss:    0.05,
		MaxDrawdown:     0.2,
		MaxLeverage:     3.0,
		MaxCorrelation:  0.7,
	}
}

func newTestManager(balance float64, limits config.RiskConfig) (*Manager, *position.Ledger, *feed.Window) {
	ledger := position.NewLedger(balance)
	window := feed.NewWindow(128)
	return NewManager(Options{
		Ledger:  ledger,
		History: window,
		Bus:     events.NewBus(),
		Limits:  limits,
	}), ledger, window
}

func TestCheckReducesOversizedOrder(t *testing.T) {
	m, _, _ := newTestManager(10000, defaultLimits())

	// balance 10000, max position 10% -> budget 1000; 20 @ 100 = 2000
	res := m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 20, 100)
	assert.True(t, res.Approved)
	assert.Equal(t, ActionReduce, res.Action)
	assert.InDelta(t, 10.0, res.SuggestedSize, 1e-9)
	assert.NotEmpty(t, res.Warnings)
}

func TestCheckAllowsWithinBudget(t *testing.T) {
	m, _, _ := newTestManager(10000, defaultLimits())

	res := m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 5, 100)
	assert.True(t, res.Approved)
	assert.Equal(t, ActionAllow, res.Action)
	assert.Equal(t, 5.0, res.SuggestedSize)
}

func TestCheckBlocksOnDailyLoss(t *testing.T) {
	m, ledger, _ := newTestManager(10000, defaultLimits())

	// realize a loss beyond 5% of balance
	ledger.ApplyFill("ETHUSDT", true, 10, 100, 0)
	ledger.ApplyFill("ETHUSDT", false, 10, 40, 0) // -600 realized

	res := m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 1, 100)
	assert.False(t, res.Approved)
	assert.Equal(t, ActionBlock, res.Action)
	assert.Contains(t, res.Reason, "daily loss")
}

func TestCheckBlocksWhenSymbolAtLimit(t *testing.T) {
	m, ledger, _ := newTestManager(10000, defaultLimits())

	ledger.ApplyFill("BTCUSDT", true, 11, 100, 0) // 1100 notional, over the 1000 budget
	res := m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 1, 100)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "already at limit")
}

func TestCheckReducesOnWideSpread(t *testing.T) {
	m, _, window := newTestManager(10000, defaultLimits())

	window.Observe(feed.Tick{Symbol: "BTCUSDT", Price: 100, Bid: 99, Ask: 101})

	// spread 2% over the 1% threshold thins the order by 20%
	res := m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 5, 100)
	assert.True(t, res.Approved)
	assert.Equal(t, ActionReduce, res.Action)
	assert.InDelta(t, 4.0, res.SuggestedSize, 1e-9)
	assert.NotEmpty(t, res.Warnings)

	// a tight book leaves the size alone
	window.Observe(feed.Tick{Symbol: "BTCUSDT", Price: 100, Bid: 99.99, Ask: 100.01})
	res = m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 5, 100)
	assert.Equal(t, ActionAllow, res.Action)
}

func TestAdmissionMonotonicity(t *testing.T) {
	strict := defaultLimits()
	strict.MaxPositionSize = 0.01
	ms, _, _ := newTestManager(10000, strict)
	blocked := ms.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 2, 100)
	assert.Equal(t, ActionReduce, blocked.Action)

	loose := defaultLimits()
	loose.MaxPositionSize = 0.5
	ml, _, _ := newTestManager(10000, loose)
	allowed := ml.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 2, 100)
	assert.Equal(t, ActionAllow, allowed.Action)
}

func TestCheckBlocksWhilePaused(t *testing.T) {
	m, _, _ := newTestManager(10000, defaultLimits())

	m.RaiseEvent(Event{Type: "manual_halt", Severity: SeverityExtreme, Message: "operator halt"})
	assert.True(t, m.Paused())

	res := m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 1, 100)
	assert.Equal(t, ActionBlock, res.Action)
	assert.Contains(t, res.Reason, "paused")

	m.Resume()
	res = m.CheckTradingRisk(context.Background(), "BTCUSDT", order.SideBuy, 1, 100)
	assert.True(t, res.Approved)
}

func TestEmergencyForceReduce(t *testing.T) {
	ledger := position.NewLedger(10000)
	ledger.ApplyFill("BTCUSDT", true, 1, 100, 0)
	ledger.ApplyFill("ETHUSDT", true, 2, 50, 0)

	var requests []string
	m := NewManager(Options{
		Ledger:  ledger,
		History: feed.NewWindow(16),
		Limits:  defaultLimits(),
		OrderRequester: func(symbol string, ratio float64, reason string) {
			assert.Equal(t, 0.5, ratio)
			requests = append(requests, symbol)
		},
	})

	m.RaiseEvent(Event{Type: EventDrawdownExceeded, Severity: SeverityExtreme, Message: "dd breach"})
	assert.Len(t, requests, 2)
	assert.True(t, m.Paused())
	assert.Equal(t, uint64(1), m.Stats().Emergencies)
}

func TestStressEmergencyShrinksLimits(t *testing.T) {
	m, _, _ := newTestManager(10000, defaultLimits())

	before := m.Limits()
	m.RaiseEvent(Event{Type: EventMarketStress, Severity: SeverityExtreme, Message: "stress"})
	after := m.Limits()
	assert.InDelta(t, before.MaxPositionSize/2, after.MaxPositionSize, 1e-9)
	assert.False(t, m.Paused(), "stress shrink must not pause admissions")
}

func TestEventLifecycle(t *testing.T) {
	m, _, _ := newTestManager(10000, defaultLimits())

	ev := m.RaiseEvent(Event{Type: EventVolatilitySpike, Symbol: "BTCUSDT", Severity: SeverityMedium, Message: "vol"})
	assert.Len(t, m.ActiveEvents(), 1)

	assert.True(t, m.ResolveEvent(ev.ID))
	assert.Empty(t, m.ActiveEvents())
	assert.Len(t, m.EventHistory(), 1)
	assert.False(t, m.ResolveEvent(ev.ID))
}

func TestRefreshMetrics(t *testing.T) {
	m, ledger, window := newTestManager(10000, defaultLimits())
	ledger.ApplyFill("BTCUSDT", true, 1, 100, 0)
	ledger.ApplyFill("ETHUSDT", false, 2, 50, 0)
	for i := 0; i < 40; i++ {
		window.Record("BTCUSDT", 100+float64(i%7))
		window.Record("ETHUSDT", 50+float64(i%5))
	}

	pm := m.RefreshMetrics(context.Background())
	assert.InDelta(t, 200.0, pm.GrossExposure, 1e-9)
	assert.InDelta(t, 0.0, pm.NetExposure, 1e-9)
	assert.InDelta(t, 0.02, pm.Leverage, 1e-9)
	assert.GreaterOrEqual(t, pm.Concentration, 0.0)
	assert.LessOrEqual(t, pm.Concentration, 1.0)
	assert.False(t, pm.ComputedAt.IsZero())
	assert.Equal(t, pm, m.Metrics())
}

func TestHerfindahl(t *testing.T) {
	assert.Equal(t, 0.0, herfindahl(nil))
	assert.Equal(t, 1.0, herfindahl([]leg{{weight: 1}}))
	even := herfindahl([]leg{{weight: 0.5}, {weight: 0.5}})
	assert.InDelta(t, 0.0, even, 1e-9)
	skewed := herfindahl([]leg{{weight: 0.9}, {weight: 0.1}})
	assert.Greater(t, skewed, 0.5)
}

func TestValueAtRiskAndShortfall(t *testing.T) {
	returns := []float64{-0.10, -0.05, -0.02, 0.01, 0.01, 0.02, 0.02, 0.03, 0.03, 0.04,
		0.01, 0.00, 0.01, -0.01, 0.02, 0.01, 0.00, 0.01, 0.02, 0.01}
	v := valueAtRisk(returns, 0.95)
	assert.InDelta(t, 0.05, v, 1e-9)
	es := expectedShortfall(returns, 0.95)
	assert.GreaterOrEqual(t, es, v)
}
