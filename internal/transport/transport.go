// Package transport implements the session transport (C2): it owns one
// UDP endpoint to the console, runs the receive loop, and exposes the
// connection state machine.
package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/xlog"
)

// State is one node of the connection state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
	ModeMock // first-class terminal state for the synthesizing substitute
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case ModeMock:
		return "mock"
	}
	return "unknown"
}

// StateChangeEvent is the payload published on eventbus.StateChange.
type StateChangeEvent struct {
	From State
	To   State
}

// Handler receives every decoded message off the wire, including
// spontaneous updates that match no pending correlator request.
type Handler func(address string, args []osc.Arg)

const (
	xinfoAddress  = "/xinfo"
	probeWindow   = 2 * time.Second
	maxConsecutiveFailures = 3
	recvBufferSize = 65535
)

// Session owns a single UDP socket to one console.
type Session struct {
	log  *xlog.Logger
	bus  *eventbus.Bus
	conn *net.UDPConn

	remoteIP   string
	remotePort int
	idleWindow time.Duration

	mtx     sync.Mutex
	state   State
	handler Handler

	closeCh chan struct{}
	wg      sync.WaitGroup

	lastRecv    time.Time
	failCount   int
	probeSentAt time.Time
}

// New builds a Session that will dial ip:port once Open is called.
func New(log *xlog.Logger, bus *eventbus.Bus, ip string, port int, idleWindow time.Duration) *Session {
	if idleWindow <= 0 {
		idleWindow = 10 * time.Second
	}
	return &Session{
		log:        log,
		bus:        bus,
		remoteIP:   ip,
		remotePort: port,
		idleWindow: idleWindow,
		state:      Disconnected,
	}
}

// SetHandler installs the callback invoked for every decoded datagram.
// Must be called before Open.
func (s *Session) SetHandler(h Handler) {
	s.mtx.Lock()
	s.handler = h
	s.mtx.Unlock()
}

// Open binds a local UDP socket and starts the receive loop plus the
// connecting→connected probe cycle. Fails with errs.BindFailed.
func (s *Session) Open(localPort int) error {
	laddr := &net.UDPAddr{Port: localPort}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return errs.New("transport.Open", errs.BindFailed, err)
	}
	// a generously sized receive queue keeps the kernel from dropping
	// bursts of spontaneous updates while the goroutine catches up.
	conn.SetReadBuffer(4 * 1024 * 1024)

	s.mtx.Lock()
	s.conn = conn
	s.closeCh = make(chan struct{})
	s.mtx.Unlock()

	s.wg.Add(2)
	go s.receiveLoop()
	go s.watchdogLoop()

	s.transition(Connecting)
	s.sendProbe()
	return nil
}

// Close idempotently cancels the receive loop and releases the socket.
func (s *Session) Close() error {
	s.mtx.Lock()
	if s.closeCh == nil {
		s.mtx.Unlock()
		return nil
	}
	select {
	case <-s.closeCh:
		// already closed
		s.mtx.Unlock()
		return nil
	default:
		close(s.closeCh)
	}
	conn := s.conn
	s.mtx.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.wg.Wait()
	s.transition(Disconnected)
	return err
}

// Send is best-effort, fire-and-forget: no retry at this layer.
func (s *Session) Send(address string, args []osc.Arg) error {
	buf, err := osc.Encode(address, args)
	if err != nil {
		return err
	}
	s.mtx.Lock()
	conn := s.conn
	s.mtx.Unlock()
	if conn == nil {
		return errs.New("transport.Send", errs.TransportError, fmt.Errorf("session not open"))
	}
	raddr := &net.UDPAddr{IP: net.ParseIP(s.remoteIP), Port: s.remotePort}
	if _, err := conn.WriteToUDP(buf, raddr); err != nil {
		return errs.New("transport.Send", errs.TransportError, err)
	}
	return nil
}

func (s *Session) State() State {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

func (s *Session) transition(to State) {
	s.mtx.Lock()
	from := s.state
	if from == to {
		s.mtx.Unlock()
		return
	}
	s.state = to
	s.mtx.Unlock()

	s.log.Infof("connection state %s -> %s", from, to)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Kind: eventbus.StateChange, Payload: StateChangeEvent{From: from, To: to}})
	}
}

func (s *Session) sendProbe() {
	s.mtx.Lock()
	s.probeSentAt = time.Now()
	s.mtx.Unlock()
	if err := s.Send(xinfoAddress, nil); err != nil {
		s.log.Warnf("probe send failed: %v", err)
	}
}

func (s *Session) receiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, recvBufferSize)
	for {
		select {
		case <-s.closeCh:
			return
		default:
		}
		s.mtx.Lock()
		conn := s.conn
		s.mtx.Unlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.closeCh:
				return
			default:
			}
			continue
		}
		msgs, err := osc.Decode(buf[:n])
		if err != nil {
			s.log.Warnf("dropping malformed packet: %v", err)
			continue
		}
		s.mtx.Lock()
		s.lastRecv = time.Now()
		s.failCount = 0
		h := s.handler
		st := s.state
		probeSentAt := s.probeSentAt
		s.mtx.Unlock()

		for _, m := range msgs {
			if st != Connected && m.Address == xinfoAddress {
				if probeSentAt.IsZero() || time.Since(probeSentAt) <= probeWindow {
					s.transition(Connected)
				} else {
					s.log.Warnf("ignoring /xinfo reply arriving after the %s probe window", probeWindow)
				}
			}
			if h != nil {
				h(m.Address, m.Args)
			}
		}
	}
}

// watchdogLoop transitions back to Connecting (and eventually Failed)
// when no datagram has been received for the idle window.
func (s *Session) watchdogLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.idleWindow / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.mtx.Lock()
			silentFor := time.Since(s.lastRecv)
			st := s.state
			s.mtx.Unlock()
			if st == Failed || st == ModeMock || st == Disconnected {
				continue
			}
			if s.lastRecv.IsZero() {
				silentFor = s.idleWindow // never heard from the console
			}
			if silentFor >= s.idleWindow {
				s.mtx.Lock()
				s.failCount++
				fc := s.failCount
				s.mtx.Unlock()
				if fc >= maxConsecutiveFailures {
					s.transition(Failed)
					continue
				}
				s.transition(Connecting)
				s.sendProbe()
			}
		}
	}
}
