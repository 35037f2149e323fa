// Package mock is the synthesizing substitute for the live console
// transport, used for "mock mode" and as the backend every
// correlator/bulk/orchestrator test dials against.
package mock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/transport"
)

// Reply is a canned response the mock hands back for a given address, or
// a drop/delay instruction used to exercise the bulk engine's retry and
// timeout paths in tests.
type Reply struct {
	Args  []osc.Arg
	Delay time.Duration
	Drop  bool // if true, no reply is ever sent for this address
}

// Transport implements the Send/SetHandler/State surface of
// *transport.Session (its Open takes no local port) but answers entirely
// from an in-memory table, never touching the network.
type Transport struct {
	mtx      sync.Mutex
	handler  transport.Handler
	bus      *eventbus.Bus
	state    transport.State
	replies  map[string]Reply
	dropN    map[string]int // remaining forced-drop count before replying, per address
	sendLog  []SentMessage
	slotNames map[int]string
	slotNotes map[int]string
}

// SentMessage records one outbound packet for test assertions (used by
// the import round-trip scenario, S4).
type SentMessage struct {
	Address string
	Args    []osc.Arg
}

func New(bus *eventbus.Bus) *Transport {
	return &Transport{
		bus:     bus,
		state:   transport.ModeMock,
		replies: make(map[string]Reply),
		dropN:   make(map[string]int),
		slotNames: make(map[int]string),
		slotNotes: make(map[int]string),
	}
}

// SetReply configures the canned response for address.
func (m *Transport) SetReply(address string, r Reply) {
	m.mtx.Lock()
	m.replies[address] = r
	m.mtx.Unlock()
}

// SetDropCount makes the first n requests to address go unanswered before
// the configured reply (if any) starts flowing; used to test C4 retries.
func (m *Transport) SetDropCount(address string, n int) {
	m.mtx.Lock()
	m.dropN[address] = n
	m.mtx.Unlock()
}

// SetSlot configures the canned name/notes for a scene slot index, used
// by store tests (S2).
func (m *Transport) SetSlot(idx int, name, notes string) {
	m.mtx.Lock()
	m.slotNames[idx] = name
	m.slotNotes[idx] = notes
	m.mtx.Unlock()
}

func (m *Transport) SetHandler(h transport.Handler) {
	m.mtx.Lock()
	m.handler = h
	m.mtx.Unlock()
}

func (m *Transport) State() transport.State {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.state
}

// Sent returns every message handed to Send so far, in order.
func (m *Transport) Sent() []SentMessage {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]SentMessage, len(m.sendLog))
	copy(out, m.sendLog)
	return out
}

// Open moves the mock straight to ModeMock and publishes that one state
// change; it never passes through connecting or connected.
func (m *Transport) Open() error {
	m.mtx.Lock()
	from := m.state
	m.state = transport.ModeMock
	m.mtx.Unlock()
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Kind: eventbus.StateChange, Payload: transport.StateChangeEvent{From: from, To: transport.ModeMock}})
	}
	return nil
}

func (m *Transport) Close() error { return nil }

// Send looks up a canned reply (or synthesizes one for well-known console
// addresses) and, unless dropped, delivers it back through the handler
// asynchronously, mimicking a real round trip over UDP.
func (m *Transport) Send(address string, args []osc.Arg) error {
	m.mtx.Lock()
	m.sendLog = append(m.sendLog, SentMessage{Address: address, Args: args})
	r, hasReply := m.replies[address]
	if !hasReply {
		r, hasReply = m.synth(address)
	}
	if remaining := m.dropN[address]; remaining > 0 {
		m.dropN[address] = remaining - 1
		m.mtx.Unlock()
		return nil // forced drop, no reply
	}
	h := m.handler
	m.mtx.Unlock()

	if !hasReply || r.Drop || h == nil {
		return nil
	}
	deliver := func() { h(address, r.Args) }
	if r.Delay > 0 {
		go func() {
			time.Sleep(r.Delay)
			deliver()
		}()
	} else {
		go deliver()
	}
	return nil
}

// synth fabricates plausible replies for addresses the caller hasn't
// explicitly configured, so an unconfigured mock session still behaves
// like a console for development use.
func (m *Transport) synth(address string) (Reply, bool) {
	switch {
	case address == "/xinfo":
		return Reply{Args: []osc.Arg{
			osc.String("10.0.0.2"), osc.String("X32-Mock"), osc.String("X32"), osc.String("4.08"),
		}}, true
	case strings.HasPrefix(address, "/-show/showfile/scene/") && strings.HasSuffix(address, "/name"):
		idx := slotIndexFromAddress(address)
		return Reply{Args: []osc.Arg{osc.String(m.slotNames[idx])}}, true
	case strings.HasPrefix(address, "/-show/showfile/scene/") && strings.HasSuffix(address, "/notes"):
		idx := slotIndexFromAddress(address)
		return Reply{Args: []osc.Arg{osc.String(m.slotNotes[idx])}}, true
	case address == "/-show/prepos/current":
		return Reply{Args: []osc.Arg{osc.Int(0)}}, true
	}
	return Reply{}, false
}

func slotIndexFromAddress(address string) int {
	parts := strings.Split(address, "/")
	for _, p := range parts {
		if len(p) == 3 {
			var n int
			if _, err := fmt.Sscanf(p, "%03d", &n); err == nil {
				return n
			}
		}
	}
	return -1
}
