package risk

import (
	"time"

	"github.com/google/uuid"

	"riptide/internal/events"
	"riptide/internal/logger"
)

const resolvedRetention = 24 * time.Hour

// RaiseEvent records a risk occurrence. Extreme severity triggers the
// emergency path synchronously before the call returns.
func (m *Manager) RaiseEvent(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	m.eventMu.Lock()
	m.active[ev.ID] = &ev
	m.eventMu.Unlock()

	logger.Warnf("risk event %s severity=%s symbol=%s: %s", ev.Type, ev.Severity, ev.Symbol, ev.Message)
	if m.bus != nil {
		kind := events.KindRiskAlert
		if ev.Severity == SeverityExtreme {
			kind = events.KindRiskEmergency
		}
		m.bus.Publish(events.Event{Kind: kind, Symbol: ev.Symbol, Payload: ev})
	}

	if ev.Severity == SeverityExtreme {
		m.handleEmergency(ev)
	}
	return ev
}

// ResolveEvent moves an active event into the bounded history.
func (m *Manager) ResolveEvent(id string) bool {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	ev, ok := m.active[id]
	if !ok {
		return false
	}
	ev.Resolved = true
	ev.ResolvedAt = time.Now()
	delete(m.active, id)
	m.eventLog = append(m.eventLog, *ev)
	if len(m.eventLog) > eventHistoryCap {
		m.eventLog = m.eventLog[len(m.eventLog)-eventHistoryCap:]
	}
	return true
}

// ActiveEvents returns copies of the unresolved events.
func (m *Manager) ActiveEvents() []Event {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	out := make([]Event, 0, len(m.active))
	for _, ev := range m.active {
		out = append(out, *ev)
	}
	return out
}

// EventHistory returns the resolved events, oldest first.
func (m *Manager) EventHistory() []Event {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	return append([]Event(nil), m.eventLog...)
}

// gcEvents drops resolved events older than the retention window.
func (m *Manager) gcEvents(now time.Time) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	cutoff := now.Add(-resolvedRetention)
	kept := m.eventLog[:0]
	for _, ev := range m.eventLog {
		if ev.ResolvedAt.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	if dropped := len(m.eventLog) - len(kept); dropped > 0 {
		logger.Debugf("risk event gc dropped %d resolved events", dropped)
	}
	m.eventLog = kept
}

// handleEmergency runs synchronously from RaiseEvent. This is the only
// code path allowed to mutate limits outside the scheduled adjuster.
func (m *Manager) handleEmergency(ev Event) {
	m.emergencies.Add(1)

	switch ev.Type {
	case EventDrawdownExceeded, EventDailyLossExceeded:
		// unwind half of every open position, then suspend admissions
		if m.request != nil {
			for sym := range m.ledger.Open() {
				m.request(sym, 0.5, "emergency de-risk: "+ev.Message)
			}
		}
		m.paused.Store(true)
	case EventMarketStress, EventVolatilitySpike:
		cur := *m.limits.Load()
		cur.MaxPositionSize /= 2
		cur.MaxDailyLoss /= 2
		cur.LastUpdate = time.Now()
		m.limits.Store(&cur)
	default:
		m.paused.Store(true)
	}
	logger.Errorf("emergency action for %s: %s (paused=%v)", ev.Type, ev.Message, m.paused.Load())
}
