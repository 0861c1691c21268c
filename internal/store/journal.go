package store

import (
	"context"
	"encoding/json"
	"time"

	"riptide/internal/events"
	"riptide/internal/logger"
	"riptide/internal/order"
	"riptide/internal/position"
)

const eventRetention = 7 * 24 * time.Hour

// Journal drains the event bus into the store. Run blocks until the
// context is cancelled; a full subscription buffer sheds events (the bus
// counts drops) rather than slowing publishers.
type Journal struct {
	store  *Store
	ch     <-chan events.Event
	cancel func()
}

// NewJournal registers the bus subscription immediately so events
// published before Run is scheduled queue up instead of being lost.
func NewJournal(store *Store, bus *events.Bus) *Journal {
	ch, cancel := bus.Subscribe(1024)
	return &Journal{store: store, ch: ch, cancel: cancel}
}

func (j *Journal) Run(ctx context.Context) error {
	defer j.cancel()

	purge := time.NewTicker(time.Hour)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-purge.C:
			j.store.purgeEvents(ctx, eventRetention)
		case ev, ok := <-j.ch:
			if !ok {
				return nil
			}
			j.record(ctx, ev)
		}
	}
}

func (j *Journal) record(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		logger.Warnf("journal: marshal %s payload: %v", ev.Kind, err)
		payload = []byte("null")
	}
	if err := j.store.insertEvent(ctx, &EventModel{
		Kind:    string(ev.Kind),
		Symbol:  ev.Symbol,
		At:      ev.At,
		Payload: payload,
	}); err != nil {
		logger.Warnf("journal: insert event: %v", err)
	}

	switch p := ev.Payload.(type) {
	case order.Order:
		if err := j.store.upsertOrder(ctx, &OrderModel{
			OrderID:      p.ID,
			Symbol:       p.Symbol,
			Side:         string(p.Side),
			Type:         string(p.Type),
			Status:       string(p.Status),
			Size:         p.Size,
			FilledSize:   p.FilledSize,
			AvgFillPrice: p.AvgFillPrice,
			Fees:         p.Fees,
			SignalID:     p.SignalID,
			Reason:       p.Reason,
			Raw:          payload,
			CreatedAt:    p.CreatedAt,
			UpdatedAt:    p.UpdatedAt,
		}); err != nil {
			logger.Warnf("journal: upsert order %s: %v", p.ID, err)
		}
	case position.Position:
		if err := j.store.upsertPosition(ctx, &PositionModel{
			Symbol:        p.Symbol,
			Size:          p.Size,
			EntryPrice:    p.EntryPrice,
			MarkPrice:     p.MarkPrice,
			RealizedPnL:   p.RealizedPnL,
			UnrealizedPnL: p.UnrealizedPnL,
			Fees:          p.Fees,
			Status:        string(p.Status),
			UpdatedAt:     p.UpdatedAt,
		}); err != nil {
			logger.Warnf("journal: upsert position %s: %v", p.Symbol, err)
		}
	}
}
