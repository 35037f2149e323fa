// Package correlator implements the request correlator (C3): it turns the
// reply-less UDP channel into a request/reply call keyed by address,
// serializing concurrent requests to the same address (a FIFO queue per
// address rather than rejecting a second in-flight request outright).
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/transport"
	"github.com/gravwell/x32mgr/internal/xlog"
)

// Transport is the subset of the session transport the correlator needs;
// satisfied by both *transport.Session and the mock substitute.
type Transport interface {
	Send(address string, args []osc.Arg) error
	SetHandler(h transport.Handler)
}

// spontaneousWhitelist names addresses the console emits unprompted; an
// unmatched reply to one of these is published as a scene-loaded event
// rather than silently dropped.
var spontaneousWhitelist = map[string]eventbus.Kind{
	"/-show/prepos/current": eventbus.SceneLoaded,
}

type pending struct {
	ch chan result
}

type result struct {
	args []osc.Arg
	err  error
}

// Correlator owns the pending-request table; one instance per live
// console session.
type Correlator struct {
	log *xlog.Logger
	bus *eventbus.Bus
	tr  Transport

	mtx       sync.Mutex
	pending   map[string]*pending
	addrLocks map[string]*sync.Mutex
}

func New(log *xlog.Logger, bus *eventbus.Bus, tr Transport) *Correlator {
	c := &Correlator{
		log:       log,
		bus:       bus,
		tr:        tr,
		pending:   make(map[string]*pending),
		addrLocks: make(map[string]*sync.Mutex),
	}
	tr.SetHandler(c.onMessage)
	return c
}

func (c *Correlator) addrLock(address string) *sync.Mutex {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	l, ok := c.addrLocks[address]
	if !ok {
		l = &sync.Mutex{}
		c.addrLocks[address] = l
	}
	return l
}

// Request sends a query for address and blocks for the reply, up to
// timeout. Concurrent callers requesting the same address serialize
// behind a per-address lock (fair FIFO via Go's mutex wait queue) rather
// than failing with BUSY.
func (c *Correlator) Request(ctx context.Context, address string, args []osc.Arg, timeout time.Duration) ([]osc.Arg, error) {
	l := c.addrLock(address)
	l.Lock()
	defer l.Unlock()

	p := &pending{ch: make(chan result, 1)}
	c.mtx.Lock()
	c.pending[address] = p
	c.mtx.Unlock()
	defer func() {
		c.mtx.Lock()
		if c.pending[address] == p {
			delete(c.pending, address)
		}
		c.mtx.Unlock()
	}()

	if err := c.tr.Send(address, args); err != nil {
		return nil, errs.New("correlator.Request", errs.TransportError, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.args, nil
	case <-timer.C:
		return nil, errs.New("correlator.Request", errs.Timeout, nil)
	case <-ctx.Done():
		return nil, errs.New("correlator.Request", errs.Canceled, ctx.Err())
	}
}

// Fail resolves every outstanding request with TRANSPORT_ERROR. The
// transport does not call it: closing a transport.Session leaves pending
// requests to run out their own timeouts.
func (c *Correlator) Fail(err error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	wrapped := errs.New("correlator", errs.TransportError, err)
	for addr, p := range c.pending {
		select {
		case p.ch <- result{err: wrapped}:
		default:
		}
		delete(c.pending, addr)
	}
}

// onMessage is installed as the transport's Handler; it resolves a
// matching pending request by exact address equality, or — for the small
// whitelist of spontaneously emitted addresses — publishes an event.
func (c *Correlator) onMessage(address string, args []osc.Arg) {
	c.mtx.Lock()
	p, ok := c.pending[address]
	if ok {
		delete(c.pending, address)
	}
	c.mtx.Unlock()

	if ok {
		select {
		case p.ch <- result{args: args}:
		default:
		}
		return
	}

	if kind, ok := spontaneousWhitelist[address]; ok && c.bus != nil {
		c.bus.Publish(eventbus.Event{Kind: kind, Payload: osc.Message{Address: address, Args: args}})
		return
	}
	c.log.Debugf("unmatched reply for %s dropped", address)
}
