package risk

import (
	"context"
	"fmt"
	"math"

	"riptide/internal/order"
)

// CheckTradingRisk runs the admission battery for a prospective trade and
// returns the decision. The battery short-circuits on the first hard
// block; a partial budget overrun comes back as reduce with a suggested
// size the bridge must honor.
func (m *Manager) CheckTradingRisk(ctx context.Context, symbol string, side order.Side, size, price float64) CheckResult {
	m.checks.Add(1)

	if size <= 0 || price <= 0 {
		return m.block("invalid size or price", 1)
	}
	if m.paused.Load() {
		return m.block("risk manager paused, admissions suspended", 1)
	}

	limits := *m.limits.Load()
	balance := m.ledger.TotalBalance()
	if balance <= 0 {
		return m.block("account equity exhausted", 1)
	}

	var warnings []string
	score := 0.0

	// (a) basic account checks
	if daily := m.ledger.DailyPnL(); daily < -limits.MaxDailyLoss*balance {
		return m.block(fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -daily, limits.MaxDailyLoss*balance), 1)
	}
	if dd := m.ledger.Drawdown(); dd > limits.MaxDrawdown {
		return m.block(fmt.Sprintf("drawdown %.1f%% exceeds limit %.1f%%", dd*100, limits.MaxDrawdown*100), 1)
	}

	// (b) dynamic per-symbol position budget
	notional := size * price
	maxNotional := balance * limits.MaxPositionSize
	existing := 0.0
	if p, ok := m.ledger.Get(symbol); ok && p.Size != 0 {
		existing = p.Notional()
	}
	budget := maxNotional - existing
	suggested := size
	action := ActionAllow
	if budget <= 0 {
		return m.block(fmt.Sprintf("%s exposure %.2f already at limit %.2f", symbol, existing, maxNotional), 1)
	}
	if notional > budget {
		suggested = budget / price
		action = ActionReduce
		score = math.Max(score, 0.5)
		warnings = append(warnings, fmt.Sprintf("size reduced from %.6f to %.6f by position budget", size, suggested))
	}

	// (c) portfolio-level checks against the latest snapshot
	pm := *m.metrics.Load()
	projectedGross := pm.GrossExposure + suggested*price
	if lev := projectedGross / balance; lev > limits.MaxLeverage {
		return m.block(fmt.Sprintf("projected leverage %.2f exceeds limit %.2f", lev, limits.MaxLeverage), 1)
	}
	if projectedGross > 0 {
		share := (existing + suggested*price) / projectedGross
		if share > 0.8 && pm.GrossExposure > 0 {
			warnings = append(warnings, fmt.Sprintf("%s would hold %.0f%% of gross exposure", symbol, share*100))
			score = math.Max(score, 0.6)
		}
	}
	if pm.Liquidity > 0.8 {
		warnings = append(warnings, "portfolio liquidity proxy elevated")
		score = math.Max(score, 0.5)
	}

	// (d) market condition checks
	if vol := m.annualizedVolatility(ctx, symbol); vol > 0 {
		switch {
		case vol > volBlockLevel:
			return m.block(fmt.Sprintf("%s annualized volatility %.0f%% is extreme", symbol, vol*100), 1)
		case vol > volAlertLevel:
			warnings = append(warnings, fmt.Sprintf("%s volatility elevated at %.0f%%", symbol, vol*100))
			score = math.Max(score, 0.6)
		}
	}
	if sp := m.history.Spread(symbol); sp > maxSpreadLevel {
		suggested *= 0.8
		action = ActionReduce
		warnings = append(warnings, fmt.Sprintf("%s bid/ask spread %.2f%% is wide", symbol, sp*100))
		score = math.Max(score, 0.5)
	}
	if stress := m.stressScore(); stress > 0 {
		switch {
		case stress > stressHighLevel:
			return m.block(fmt.Sprintf("market stress %.2f above threshold", stress), 1)
		case stress > stressWarnLevel:
			reducedBy := 1 - (stress-stressWarnLevel)/(1-stressWarnLevel)*0.5
			suggested *= reducedBy
			action = ActionReduce
			warnings = append(warnings, fmt.Sprintf("size scaled by %.2f under market stress %.2f", reducedBy, stress))
			score = math.Max(score, stress)
		}
	}

	// (e) pairwise correlation against open positions
	for other, p := range m.ledger.Open() {
		if other == symbol || p.Size == 0 {
			continue
		}
		if c, ok := m.correlation(symbol, other); ok && math.Abs(c) > limits.MaxCorrelation {
			return m.block(fmt.Sprintf("correlation %.2f between %s and %s exceeds limit %.2f",
				c, symbol, other, limits.MaxCorrelation), math.Abs(c))
		}
	}

	if suggested <= 0 {
		return m.block("suggested size reduced to zero", 1)
	}
	if action == ActionReduce {
		m.reduced.Add(1)
	}
	return CheckResult{
		Approved:      true,
		Action:        action,
		Reason:        "approved",
		MaxSize:       maxNotional / price,
		SuggestedSize: suggested,
		Score:         clamp01(score),
		Warnings:      warnings,
	}
}

func (m *Manager) block(reason string, score float64) CheckResult {
	m.blocked.Add(1)
	return CheckResult{
		Approved: false,
		Action:   ActionBlock,
		Reason:   reason,
		Score:    clamp01(score),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
