package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// correlation reads the cached pairwise value maintained by the refresh
// loop.
func (m *Manager) correlation(a, b string) (float64, bool) {
	m.corrMu.RLock()
	defer m.corrMu.RUnlock()
	c, ok := m.corr[pairKey(a, b)]
	return c, ok
}

func (m *Manager) averageCorrelation() float64 {
	m.corrMu.RLock()
	defer m.corrMu.RUnlock()
	if len(m.corr) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range m.corr {
		sum += math.Abs(c)
	}
	return sum / float64(len(m.corr))
}

// refreshCorrelations recomputes the pairwise matrix across open positions
// and raises an anomaly event when a pair breaches the configured ceiling.
func (m *Manager) refreshCorrelations(ctx context.Context) {
	open := m.ledger.Open()
	symbols := make([]string, 0, len(open))
	for sym := range open {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	next := make(map[string]float64)
	limit := m.limits.Load().MaxCorrelation
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			c, ok := m.pairCorrelation(ctx, symbols[i], symbols[j])
			if !ok {
				continue
			}
			key := pairKey(symbols[i], symbols[j])
			next[key] = c
			if math.Abs(c) > limit {
				m.RaiseEvent(Event{
					Type:     EventCorrelationAnomaly,
					Symbol:   strings.ReplaceAll(key, "|", "/"),
					Severity: SeverityHigh,
					Message:  fmt.Sprintf("pairwise correlation %.2f exceeds limit %.2f", c, limit),
					Data:     map[string]any{"correlation": c, "limit": limit},
				})
			}
		}
	}

	m.corrMu.Lock()
	m.corr = next
	m.corrMu.Unlock()
}
