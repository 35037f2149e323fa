package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversInOrder(t *testing.T) {
	b := New()
	sub := b.Subscribe(StateChange)

	b.Publish(Event{Kind: StateChange, Payload: "connecting"})
	b.Publish(Event{Kind: StateChange, Payload: "connected"})
	b.Publish(Event{Kind: ImportProgress, Payload: "ignored, wrong kind"})

	ev1 := <-sub.Events()
	ev2 := <-sub.Events()
	require.Equal(t, "connecting", ev1.Payload)
	require.Equal(t, "connected", ev2.Payload)

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event delivered: %+v", ev)
	default:
	}
}

func TestSubscribeAllKinds(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Publish(Event{Kind: Error, Payload: "boom"})
	ev := <-sub.Events()
	require.Equal(t, Error, ev.Kind)
}

func TestSlowSubscriberGetsLaggedMarker(t *testing.T) {
	b := New()
	b.queueDepth = 2
	sub := b.Subscribe(StateChange)
	// replace with the smaller queue depth by resubscribing under the
	// already-shrunk bus
	sub.Close()
	sub = b.Subscribe(StateChange)

	b.Publish(Event{Kind: StateChange, Payload: 1})
	b.Publish(Event{Kind: StateChange, Payload: 2}) // only the reserved slot left, lag marker instead
	b.Publish(Event{Kind: StateChange, Payload: 3}) // queue full, dropped

	ev1 := <-sub.Events()
	ev2 := <-sub.Events()
	require.Equal(t, 1, ev1.Payload)
	require.Equal(t, SubscriberLagged, ev2.Kind)
}

func TestCloseSubscription(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Close()
	_, ok := <-sub.Events()
	require.False(t, ok)
}
