// Package events is the in-process event bus. The execution bridge and the
// risk manager publish; the journal store, the HTTP layer and tests
// subscribe. Publish never blocks: a subscriber that falls behind loses
// events and the drop is counted.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	KindOrderCreated   Kind = "order_created"
	KindOrderSubmitted Kind = "order_submitted"
	KindOrderFilled    Kind = "order_filled"
	KindOrderCancelled Kind = "order_cancelled"
	KindOrderRejected  Kind = "order_rejected"
	KindOrderExpired   Kind = "order_expired"
	KindOrderTimeout   Kind = "order_timeout"
	KindPositionUpdate Kind = "position_update"
	KindRiskAlert      Kind = "risk_alert"
	KindRiskEmergency  Kind = "risk_emergency"
	KindStopTriggered  Kind = "stop_triggered"
	KindTakeProfitHit  Kind = "take_profit_hit"
)

// Event is the envelope every publisher emits. Payload is a snapshot value
// (order copy, position copy, risk event), never a pointer into live state.
type Event struct {
	Kind    Kind
	Symbol  string
	At      time.Time
	Payload any
}

type subscriber struct {
	ch    chan Event
	kinds map[Kind]struct{} // nil means all kinds
}

type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	closed  bool
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a buffered subscription. With no kinds the channel
// receives every event. Cancel must be called exactly once; it closes the
// channel.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			_, present := b.subs[sub]
			delete(b.subs, sub)
			b.mu.Unlock()
			if present {
				// Close already closed the channel otherwise
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish fans the event out to matching subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if sub.kinds != nil {
			if _, want := sub.kinds[ev.Kind]; !want {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close tears down the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*subscriber]struct{})
}
