package main

import (
	"fmt"
	"os"

	"github.com/gravwell/x32mgr/internal/config"
	"github.com/gravwell/x32mgr/internal/correlator"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/store"
	"github.com/gravwell/x32mgr/internal/transport"
	"github.com/gravwell/x32mgr/internal/transport/mock"
	"github.com/gravwell/x32mgr/internal/xlog"
)

// runtime bundles the live objects every subcommand needs: a session that
// can be opened, a correlator for blocking requests, a bare sender for
// fire-and-forget sets, and the scene store built atop both.
type runtime struct {
	log   *xlog.Logger
	bus   *eventbus.Bus
	sess  session
	corr  *correlator.Correlator
	snd   sender
	store *store.Store
}

// session is the subset of *transport.Session the daemon drives directly;
// satisfied by the live transport and, via mockSession, the synthesizing
// substitute.
type session interface {
	Open(localPort int) error
	State() transport.State
}

type sender interface {
	Send(address string, args []osc.Arg) error
}

// mockSession adapts *mock.Transport's zero-argument Open to the
// session interface's Open(localPort int) signature; the mock never
// actually binds a socket so the port is simply ignored.
type mockSession struct {
	*mock.Transport
}

func (m mockSession) Open(int) error { return m.Transport.Open() }

// buildRuntime assembles every live object from cfg, choosing the mock
// transport when cfg.MockMode is set.
func buildRuntime(cfg config.Config, log *xlog.Logger) (*runtime, error) {
	bus := eventbus.New()

	var sess session
	var corrTransport correlator.Transport
	var snd sender

	if cfg.MockMode {
		tr := mock.New(bus)
		sess = mockSession{tr}
		corrTransport = tr
		snd = tr
	} else {
		tr := transport.New(log, bus, cfg.ConsoleIP, cfg.ConsolePort, cfg.IdleWindow)
		sess = tr
		corrTransport = tr
		snd = tr
	}

	corr := correlator.New(log, bus, corrTransport)

	if err := os.MkdirAll(cfg.SceneDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scene directory %s: %w", cfg.SceneDir, err)
	}
	st, err := store.New(log, bus, corr, snd, cfg.SceneDir)
	if err != nil {
		return nil, fmt.Errorf("opening scene store: %w", err)
	}

	return &runtime{log: log, bus: bus, sess: sess, corr: corr, snd: snd, store: st}, nil
}

func (rt *runtime) Close() {
	if rt.store != nil {
		rt.store.Close()
	}
	rt.bus.Close()
}
