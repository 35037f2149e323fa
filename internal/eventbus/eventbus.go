// Package eventbus is the fan-out observer: a publisher side used by the
// transport, orchestrators, and store, and a subscriber side used by the
// WebSocket layer. A bounded per-subscriber queue, no backpressure, a
// dropped-message marker when a subscriber falls behind.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Kind identifies one of the event categories the bus carries.
type Kind string

const (
	StateChange            Kind = "state-change"
	SceneLoaded             Kind = "scene-loaded"
	SceneListInvalidated    Kind = "scene-list-invalidated"
	ExportProgress          Kind = "export-progress"
	ImportProgress          Kind = "import-progress"
	Error                   Kind = "error"
	SubscriberLagged        Kind = "subscriber-lagged"
)

// Event is one envelope published on the bus.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// DefaultQueueDepth is the bounded queue size per subscriber.
const DefaultQueueDepth = 256

// Subscription is a live registration; the caller reads Events() until
// Close is called or the bus itself is closed.
type Subscription struct {
	id    uuid.UUID
	ch    chan Event
	kinds map[Kind]bool // nil means "all kinds"
	bus   *Bus
}

func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Bus is the publisher side: any component can Publish; it never blocks on
// a slow subscriber past the bounded queue depth.
type Bus struct {
	mtx         sync.RWMutex
	subs        map[uuid.UUID]*Subscription
	queueDepth  int
}

func New() *Bus {
	return &Bus{subs: make(map[uuid.UUID]*Subscription), queueDepth: DefaultQueueDepth}
}

// Subscribe registers a new subscriber. If kinds is empty the subscriber
// receives every event kind.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	var kindSet map[Kind]bool
	if len(kinds) > 0 {
		kindSet = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			kindSet[k] = true
		}
	}
	sub := &Subscription{
		id:    uuid.New(),
		ch:    make(chan Event, b.queueDepth),
		kinds: kindSet,
		bus:   b,
	}
	b.mtx.Lock()
	b.subs[sub.id] = sub
	b.mtx.Unlock()
	return sub
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mtx.Lock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mtx.Unlock()
}

// Publish delivers ev to every interested subscriber in emission order.
// The last slot of each subscriber's queue is kept for a SubscriberLagged
// marker: once a subscriber has queueDepth-1 events waiting, ev is dropped
// for that subscriber only and the marker is queued in its place.
func (b *Bus) Publish(ev Event) {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[ev.Kind] {
			continue
		}
		if len(sub.ch) < cap(sub.ch)-1 {
			select {
			case sub.ch <- ev:
				continue
			default:
			}
		}
		select {
		case sub.ch <- Event{Kind: SubscriberLagged}:
		default:
			// even the lag marker doesn't fit; subscriber is far enough
			// behind that nothing more can be done without blocking.
		}
	}
}

// Close tears down every live subscription; subsequent Publish calls are
// no-ops.
func (b *Bus) Close() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
