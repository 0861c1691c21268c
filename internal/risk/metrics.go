package risk

import (
	"context"
	"math"
	"sort"
	"time"

	talib "github.com/markcheno/go-talib"
)

const (
	returnWindow    = 50
	varConfidence   = 0.95
	annualPeriods   = 365 * 24 // hourly-ish sampling assumption
	minCorrSamples  = 10
	volAlertLevel   = 0.8
	volBlockLevel   = 1.5
	stressWarnLevel = 0.5
	stressHighLevel = 0.8
	maxSpreadLevel  = 0.01 // relative bid/ask spread that thins a new order
)

// leg is one open position's contribution to the portfolio sample.
type leg struct {
	symbol  string
	weight  float64
	returns []float64
}

// computeMetrics rebuilds the portfolio snapshot from open positions and
// recent price history. It never mutates manager state; the caller swaps
// the result in atomically.
func (m *Manager) computeMetrics(ctx context.Context) PortfolioMetrics {
	open := m.ledger.Open()
	equity := m.ledger.TotalBalance()

	pm := PortfolioMetrics{
		Drawdown:    m.ledger.Drawdown(),
		StressScore: m.stressScore(),
		ComputedAt:  time.Now(),
	}

	var legs []leg
	for sym, p := range open {
		notional := p.Notional()
		pm.GrossExposure += notional
		if p.Long() {
			pm.NetExposure += notional
		} else {
			pm.NetExposure -= notional
		}
		prices, _ := m.history.RecentPrices(ctx, sym, returnWindow+1)
		legs = append(legs, leg{symbol: sym, returns: priceReturns(prices)})
	}
	if equity > 0 {
		pm.Leverage = pm.GrossExposure / equity
	}
	if pm.GrossExposure <= 0 {
		return pm
	}
	for i := range legs {
		p := open[legs[i].symbol]
		legs[i].weight = p.Notional() / pm.GrossExposure
	}

	pm.Concentration = herfindahl(legs)

	// portfolio return sample aligned on the shortest leg
	sample := portfolioReturns(legs)
	if len(sample) >= 2 {
		pm.VaR1d = valueAtRisk(sample, varConfidence) * pm.GrossExposure
		pm.VaR5d = pm.VaR1d * math.Sqrt(5)
		pm.ExpectedShortfall = expectedShortfall(sample, varConfidence) * pm.GrossExposure
	}

	pm.Correlation = m.averageCorrelation()

	// liquidity proxy: exposure-weighted relative spread; short-run
	// volatility stands in for symbols with no quote yet
	for _, l := range legs {
		if sp := m.history.Spread(l.symbol); sp > 0 {
			pm.Liquidity += l.weight * math.Min(1, sp*10)
			continue
		}
		if len(l.returns) > 0 {
			pm.Liquidity += l.weight * math.Min(1, stdDev(l.returns)*20)
		}
	}
	return pm
}

// annualizedVolatility returns the annualized stddev of returns for a
// symbol, or 0 when there is not enough history.
func (m *Manager) annualizedVolatility(ctx context.Context, symbol string) float64 {
	prices, _ := m.history.RecentPrices(ctx, symbol, returnWindow+1)
	rets := priceReturns(prices)
	if len(rets) < 2 {
		return 0
	}
	series := talib.StdDev(rets, len(rets), 1.0)
	sd := series[len(series)-1]
	return sd * math.Sqrt(annualPeriods)
}

// pairCorrelation computes the latest rolling correlation between two
// symbols' return series.
func (m *Manager) pairCorrelation(ctx context.Context, a, b string) (float64, bool) {
	pa, _ := m.history.RecentPrices(ctx, a, returnWindow+1)
	pb, _ := m.history.RecentPrices(ctx, b, returnWindow+1)
	ra, rb := priceReturns(pa), priceReturns(pb)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < minCorrSamples {
		return 0, false
	}
	ra, rb = ra[len(ra)-n:], rb[len(rb)-n:]
	series := talib.Correl(ra, rb, n)
	c := series[len(series)-1]
	if math.IsNaN(c) {
		return 0, false
	}
	return c, true
}

func priceReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			continue
		}
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out
}

func portfolioReturns(legs []leg) []float64 {
	shortest := 0
	for _, l := range legs {
		if len(l.returns) == 0 {
			continue
		}
		if shortest == 0 || len(l.returns) < shortest {
			shortest = len(l.returns)
		}
	}
	if shortest == 0 {
		return nil
	}
	out := make([]float64, shortest)
	for _, l := range legs {
		if len(l.returns) < shortest {
			continue
		}
		tail := l.returns[len(l.returns)-shortest:]
		for i, r := range tail {
			out[i] += l.weight * r
		}
	}
	return out
}

// herfindahl maps weight concentration onto [0,1]: 0 for perfectly even,
// 1 for a single position.
func herfindahl(legs []leg) float64 {
	n := len(legs)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return 1
	}
	h := 0.0
	for _, l := range legs {
		h += l.weight * l.weight
	}
	min := 1.0 / float64(n)
	return (h - min) / (1 - min)
}

// valueAtRisk returns the loss fraction at the given confidence, as a
// positive number.
func valueAtRisk(returns []float64, confidence float64) float64 {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * (1 - confidence))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	if v >= 0 {
		return 0
	}
	return -v
}

// expectedShortfall averages the tail beyond the VaR cutoff.
func expectedShortfall(returns []float64, confidence float64) float64 {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	cutoff := int(float64(len(sorted)) * (1 - confidence))
	if cutoff == 0 {
		cutoff = 1
	}
	sum := 0.0
	count := 0
	for _, r := range sorted[:cutoff] {
		if r < 0 {
			sum += -r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
