package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishFanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all, cancelAll := bus.Subscribe(4)
	defer cancelAll()
	fills, cancelFills := bus.Subscribe(4, KindOrderFilled)
	defer cancelFills()

	bus.Publish(Event{Kind: KindOrderCreated, Symbol: "BTCUSDT"})
	bus.Publish(Event{Kind: KindOrderFilled, Symbol: "BTCUSDT"})

	ev := <-all
	assert.Equal(t, KindOrderCreated, ev.Kind)
	ev = <-all
	assert.Equal(t, KindOrderFilled, ev.Kind)
	assert.False(t, ev.At.IsZero())

	ev = <-fills
	assert.Equal(t, KindOrderFilled, ev.Kind)
	select {
	case ev = <-fills:
		t.Fatalf("filtered subscriber received %s", ev.Kind)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindPositionUpdate})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, uint64(9), bus.Dropped())
}

func TestCancelAndClose(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // second cancel must be safe

	_, ok := <-ch
	assert.False(t, ok)

	ch2, cancel2 := bus.Subscribe(1)
	bus.Close()
	_, ok = <-ch2
	assert.False(t, ok)
	cancel2()

	// publishing after close is a no-op
	bus.Publish(Event{Kind: KindRiskAlert})
}
