package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 16)
	defer bus.Close()

	var got atomic.Int64
	bus.Subscribe(EventTypeStateChanged, func(_ context.Context, e Event) {
		if e.Payload() == "payload" {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), NewEvent(EventTypeStateChanged, "payload"))
	waitFor(t, func() bool { return got.Load() == 1 })
}

func TestBusTypeIsolation(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 16)
	defer bus.Close()

	var stateN, alertN atomic.Int64
	bus.Subscribe(EventTypeStateChanged, func(context.Context, Event) { stateN.Add(1) })
	bus.Subscribe(EventTypeSafetyAlert, func(context.Context, Event) { alertN.Add(1) })

	bus.Publish(context.Background(), NewEvent(EventTypeSafetyAlert, nil))
	waitFor(t, func() bool { return alertN.Load() == 1 })
	if stateN.Load() != 0 {
		t.Error("event delivered to the wrong type")
	}
}

func TestBusWildcardSubscriber(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 16)
	defer bus.Close()

	var n atomic.Int64
	bus.Subscribe("*", func(context.Context, Event) { n.Add(1) })

	ctx := context.Background()
	bus.Publish(ctx, NewEvent(EventTypeStateChanged, nil))
	bus.Publish(ctx, NewEvent(EventTypePatternsReloaded, nil))
	waitFor(t, func() bool { return n.Load() == 2 })
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 16)
	defer bus.Close()

	var n atomic.Int64
	bus.Subscribe(EventTypeStateChanged, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(EventTypeStateChanged, func(context.Context, Event) { n.Add(1) })

	ctx := context.Background()
	bus.Publish(ctx, NewEvent(EventTypeStateChanged, nil))
	bus.Publish(ctx, NewEvent(EventTypeStateChanged, nil))
	waitFor(t, func() bool { return n.Load() == 2 })
}

func TestBusPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 16)
	bus.Subscribe(EventTypeStateChanged, func(context.Context, Event) {})
	bus.Close()

	// Must not panic on the closed channel.
	bus.Publish(context.Background(), NewEvent(EventTypeStateChanged, nil))
}
