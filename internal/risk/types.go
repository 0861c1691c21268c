// Package risk gates every prospective trade and polices aggregate
// portfolio risk from a set of independently scheduled monitoring loops.
package risk

import "time"

type Action string

const (
	ActionAllow          Action = "allow"
	ActionReduce         Action = "reduce"
	ActionBlock          Action = "block"
	ActionEmergencyClose Action = "emergency_close"
	ActionPause          Action = "pause"
)

// CheckResult is the admission decision for one prospective trade. It is
// immutable once returned; the bridge must respect SuggestedSize when the
// action is reduce.
type CheckResult struct {
	Approved      bool     `json:"approved"`
	Action        Action   `json:"action"`
	Reason        string   `json:"reason"`
	MaxSize       float64  `json:"max_size,omitempty"`
	SuggestedSize float64  `json:"suggested_size,omitempty"`
	Score         float64  `json:"score"`
	Warnings      []string `json:"warnings,omitempty"`
}

type Severity string

const (
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	SeverityExtreme Severity = "extreme"
)

// Event is an immutable risk occurrence. Active events live in a map keyed
// by id and move to the bounded history on resolution.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Symbol     string         `json:"symbol,omitempty"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt time.Time      `json:"resolved_at,omitempty"`
}

// Event types the manager itself raises.
const (
	EventVolatilitySpike    = "volatility_spike"
	EventCorrelationAnomaly = "correlation_anomaly"
	EventDrawdownExceeded   = "drawdown_exceeded"
	EventDailyLossExceeded  = "daily_loss_exceeded"
	EventMarketStress       = "market_stress"
)

// PortfolioMetrics is a point-in-time snapshot recomputed wholesale by the
// metrics loop. Readers get the whole snapshot or nothing.
type PortfolioMetrics struct {
	GrossExposure     float64   `json:"gross_exposure"`
	NetExposure       float64   `json:"net_exposure"`
	Leverage          float64   `json:"leverage"`
	VaR1d             float64   `json:"var_1d"`
	VaR5d             float64   `json:"var_5d"`
	ExpectedShortfall float64   `json:"expected_shortfall"`
	Concentration     float64   `json:"concentration"`
	Correlation       float64   `json:"correlation"`
	Liquidity         float64   `json:"liquidity"`
	Drawdown          float64   `json:"drawdown"`
	StressScore       float64   `json:"stress_score"`
	ComputedAt        time.Time `json:"computed_at"`
}

// Limits is the dynamic limit set every admission check reads. Only the
// scheduled adjuster loop and the emergency path write it; writes swap the
// whole snapshot.
type Limits struct {
	MaxPositionSize      float64   `json:"max_position_size"`
	MaxDailyLoss         float64   `json:"max_daily_loss"`
	MaxDrawdown          float64   `json:"max_drawdown"`
	MaxLeverage          float64   `json:"max_leverage"`
	MaxCorrelation       float64   `json:"max_correlation"`
	VolatilityMultiplier float64   `json:"volatility_multiplier"`
	StressMultiplier     float64   `json:"stress_multiplier"`
	LastUpdate           time.Time `json:"last_update"`
}

// Stats are running admission counters.
type Stats struct {
	Checks      uint64 `json:"checks"`
	Blocked     uint64 `json:"blocked"`
	Reduced     uint64 `json:"reduced"`
	Emergencies uint64 `json:"emergencies"`
}
