package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"riptide/internal/logger"
)

// Run starts the monitoring loops and blocks until the context is
// cancelled. Each loop has its own ticker; a stalled feed never stalls the
// clocks.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.loop(ctx, m.intervals.MetricsInterval, m.metricsTick) })
	g.Go(func() error { return m.loop(ctx, m.intervals.LimitsInterval, m.limitsTick) })
	g.Go(func() error { return m.loop(ctx, m.intervals.CorrelationInterval, func(ctx context.Context) { m.refreshCorrelations(ctx) }) })
	g.Go(func() error { return m.loop(ctx, m.intervals.StressInterval, m.stressTick) })
	g.Go(func() error { return m.loop(ctx, m.intervals.EventGCInterval, func(context.Context) { m.gcEvents(time.Now()) }) })

	logger.Infof("risk monitoring loops started (metrics=%s limits=%s corr=%s stress=%s gc=%s)",
		m.intervals.MetricsInterval, m.intervals.LimitsInterval,
		m.intervals.CorrelationInterval, m.intervals.StressInterval, m.intervals.EventGCInterval)
	return g.Wait()
}

func (m *Manager) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// metricsTick refreshes the portfolio snapshot and raises breach events
// the admission gate alone cannot see coming.
func (m *Manager) metricsTick(ctx context.Context) {
	pm := m.RefreshMetrics(ctx)
	limits := *m.limits.Load()

	if pm.Drawdown > limits.MaxDrawdown {
		m.RaiseEvent(Event{
			Type:     EventDrawdownExceeded,
			Severity: SeverityExtreme,
			Message:  fmt.Sprintf("drawdown %.1f%% breached limit %.1f%%", pm.Drawdown*100, limits.MaxDrawdown*100),
			Data:     map[string]any{"drawdown": pm.Drawdown, "limit": limits.MaxDrawdown},
		})
	}
	balance := m.ledger.TotalBalance()
	if daily := m.ledger.DailyPnL(); balance > 0 && daily < -limits.MaxDailyLoss*balance {
		m.RaiseEvent(Event{
			Type:     EventDailyLossExceeded,
			Severity: SeverityExtreme,
			Message:  fmt.Sprintf("daily pnl %.2f breached limit %.2f", daily, -limits.MaxDailyLoss*balance),
			Data:     map[string]any{"daily_pnl": daily},
		})
	}
}

// limitsTick is the sole scheduled writer of the limit snapshot. It
// rescales the configured baseline by the current volatility and stress
// multipliers and swaps the snapshot in one shot.
func (m *Manager) limitsTick(ctx context.Context) {
	base := m.baseLimits()
	next := limitsFrom(base)

	// wide portfolio volatility shrinks the position budget, calm
	// markets let it recover toward the baseline
	vol := m.portfolioVolatility(ctx)
	volMult := 1.0
	if vol > 0 {
		volMult = clampRange(volAlertLevel/vol, 0.25, 1.25)
	}
	stressMult := clampRange(1-m.stressScore()*0.75, 0.25, 1)

	next.VolatilityMultiplier = volMult
	next.StressMultiplier = stressMult
	next.MaxPositionSize = base.MaxPositionSize * volMult * stressMult
	next.MaxDailyLoss = base.MaxDailyLoss * stressMult
	next.LastUpdate = time.Now()
	m.limits.Store(next)
	logger.Debugf("risk limits adjusted: pos=%.4f (vol=%.2f stress=%.2f)", next.MaxPositionSize, volMult, stressMult)
}

func (m *Manager) portfolioVolatility(ctx context.Context) float64 {
	open := m.ledger.Open()
	if len(open) == 0 {
		return 0
	}
	gross := 0.0
	for _, p := range open {
		gross += p.Notional()
	}
	if gross <= 0 {
		return 0
	}
	total := 0.0
	for sym, p := range open {
		total += p.Notional() / gross * m.annualizedVolatility(ctx, sym)
	}
	return total
}

// stressTick recomputes the composite market stress score: volatility
// expansion, spread widening, volume spikes, liquidity thinning and
// correlation breakdown, averaged over the components that are actually
// signalling.
func (m *Manager) stressTick(ctx context.Context) {
	pm := *m.metrics.Load()

	var components []float64
	if vol := m.portfolioVolatility(ctx); vol > 0 {
		components = append(components, clamp01(vol/volBlockLevel))
	}
	spread, volume := m.history.StressIndicators()
	if spread > 0 {
		components = append(components, clamp01(spread/maxSpreadLevel))
	}
	if volume > 0 {
		components = append(components, clamp01(volume))
	}
	if pm.Liquidity > 0 {
		components = append(components, clamp01(pm.Liquidity))
	}
	if avg := m.averageCorrelation(); avg > 0 {
		components = append(components, clamp01(avg))
	}

	score := 0.0
	if len(components) > 0 {
		for _, c := range components {
			score += c
		}
		score /= float64(len(components))
	}
	prev := m.stressScore()
	m.setStressScore(score)

	if score > stressHighLevel && prev <= stressHighLevel {
		m.RaiseEvent(Event{
			Type:     EventMarketStress,
			Severity: SeverityExtreme,
			Message:  fmt.Sprintf("market stress score %.2f crossed %.2f", score, stressHighLevel),
			Data:     map[string]any{"score": score},
		})
	}
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
