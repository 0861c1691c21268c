package risk

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"riptide/internal/config"
	"riptide/internal/events"
	"riptide/internal/feed"
	"riptide/internal/logger"
	"riptide/internal/position"
)

// OrderRequester lets the emergency path originate a position-reducing
// order without the manager depending on the bridge. CloseRatio is the
// fraction of the open position to unwind.
type OrderRequester func(symbol string, closeRatio float64, reason string)

type Options struct {
	Ledger         *position.Ledger
	History        feed.History
	Bus            *events.Bus
	Limits         config.RiskConfig
	OrderRequester OrderRequester

	MetricsInterval     time.Duration
	LimitsInterval      time.Duration
	CorrelationInterval time.Duration
	StressInterval      time.Duration
	EventGCInterval     time.Duration
}

// Manager owns the admission gate and the monitoring loops. Limits and
// metrics are snapshot objects behind atomic pointers; checks read,
// monitoring loops write.
type Manager struct {
	ledger  *position.Ledger
	history feed.History
	bus     *events.Bus
	request OrderRequester

	base    config.RiskConfig // configured baseline, rescaled by the adjuster
	baseMu  sync.RWMutex
	limits  atomic.Pointer[Limits]
	metrics atomic.Pointer[PortfolioMetrics]
	stress  atomic.Uint64 // float64 bits

	paused atomic.Bool

	eventMu  sync.Mutex
	active   map[string]*Event
	eventLog []Event

	corrMu sync.RWMutex
	corr   map[string]float64

	checks      atomic.Uint64
	blocked     atomic.Uint64
	reduced     atomic.Uint64
	emergencies atomic.Uint64

	intervals Options
}

const eventHistoryCap = 500

func NewManager(opts Options) *Manager {
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = 30 * time.Second
	}
	if opts.LimitsInterval <= 0 {
		opts.LimitsInterval = 5 * time.Minute
	}
	if opts.CorrelationInterval <= 0 {
		opts.CorrelationInterval = 5 * time.Minute
	}
	if opts.StressInterval <= 0 {
		opts.StressInterval = time.Minute
	}
	if opts.EventGCInterval <= 0 {
		opts.EventGCInterval = time.Hour
	}

	m := &Manager{
		ledger:    opts.Ledger,
		history:   opts.History,
		bus:       opts.Bus,
		request:   opts.OrderRequester,
		base:      opts.Limits,
		active:    make(map[string]*Event),
		corr:      make(map[string]float64),
		intervals: opts,
	}
	m.limits.Store(limitsFrom(opts.Limits))
	m.metrics.Store(&PortfolioMetrics{ComputedAt: time.Now()})
	m.setStressScore(0)
	return m
}

func limitsFrom(c config.RiskConfig) *Limits {
	return &Limits{
		MaxPositionSize:      c.MaxPositionSize,
		MaxDailyLoss:         c.MaxDailyLoss,
		MaxDrawdown:          c.MaxDrawdown,
		MaxLeverage:          c.MaxLeverage,
		MaxCorrelation:       c.MaxCorrelation,
		VolatilityMultiplier: 1,
		StressMultiplier:     1,
		LastUpdate:           time.Now(),
	}
}

// SetOrderRequester wires the emergency force-reduce hook after
// construction; the bridge is built after the manager.
func (m *Manager) SetOrderRequester(fn OrderRequester) { m.request = fn }

// Limits returns the current snapshot. The returned value must not be
// mutated.
func (m *Manager) Limits() Limits { return *m.limits.Load() }

// Metrics returns the latest portfolio snapshot.
func (m *Manager) Metrics() PortfolioMetrics { return *m.metrics.Load() }

func (m *Manager) Stats() Stats {
	return Stats{
		Checks:      m.checks.Load(),
		Blocked:     m.blocked.Load(),
		Reduced:     m.reduced.Load(),
		Emergencies: m.emergencies.Load(),
	}
}

// Paused reports whether new admissions are suspended.
func (m *Manager) Paused() bool { return m.paused.Load() }

// Resume lifts an emergency pause.
func (m *Manager) Resume() {
	if m.paused.CompareAndSwap(true, false) {
		logger.Infof("risk manager resumed, admissions re-enabled")
	}
}

// UpdateBaseLimits replaces the configured baseline, typically from a
// config hot reload. The adjuster loop folds it into the live snapshot on
// its next tick; the immediate swap keeps checks from running on stale
// absolute caps in between.
func (m *Manager) UpdateBaseLimits(c config.RiskConfig) {
	m.baseMu.Lock()
	m.base = c
	m.baseMu.Unlock()
	cur := m.limits.Load()
	next := limitsFrom(c)
	next.VolatilityMultiplier = cur.VolatilityMultiplier
	next.StressMultiplier = cur.StressMultiplier
	next.MaxPositionSize *= next.VolatilityMultiplier * next.StressMultiplier
	next.MaxDailyLoss *= next.StressMultiplier
	m.limits.Store(next)
	logger.Infof("risk limits baseline updated: pos=%.3f daily=%.3f dd=%.3f lev=%.2f corr=%.2f",
		c.MaxPositionSize, c.MaxDailyLoss, c.MaxDrawdown, c.MaxLeverage, c.MaxCorrelation)
}

func (m *Manager) baseLimits() config.RiskConfig {
	m.baseMu.RLock()
	defer m.baseMu.RUnlock()
	return m.base
}

func (m *Manager) stressScore() float64 {
	return math.Float64frombits(m.stress.Load())
}

func (m *Manager) setStressScore(v float64) {
	m.stress.Store(math.Float64bits(v))
}

// RefreshMetrics recomputes and swaps the portfolio snapshot once. The
// metrics loop calls it on a ticker; tests call it directly.
func (m *Manager) RefreshMetrics(ctx context.Context) PortfolioMetrics {
	pm := m.computeMetrics(ctx)
	m.metrics.Store(&pm)
	return pm
}
