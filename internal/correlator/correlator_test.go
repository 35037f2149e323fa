package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/transport/mock"
	"github.com/gravwell/x32mgr/internal/xlog"
)

func newTestCorrelator() (*Correlator, *mock.Transport) {
	bus := eventbus.New()
	tr := mock.New(bus)
	c := New(xlog.NewDiscard(), bus, tr)
	return c, tr
}

func TestRequestResolvesWithReply(t *testing.T) {
	c, tr := newTestCorrelator()
	tr.SetReply("/xinfo", mock.Reply{Args: []osc.Arg{
		osc.String("10.0.0.2"), osc.String("FOH-Main"), osc.String("X32"), osc.String("4.08"),
	}})

	args, err := c.Request(context.Background(), "/xinfo", nil, time.Second)
	require.NoError(t, err)
	require.Len(t, args, 4)
	require.Equal(t, "FOH-Main", args[1].S)
}

func TestTimeoutIffDelayExceedsBudget(t *testing.T) {
	c, tr := newTestCorrelator()
	tr.SetReply("/slow", mock.Reply{Args: []osc.Arg{osc.Int(1)}, Delay: 80 * time.Millisecond})

	_, err := c.Request(context.Background(), "/slow", nil, 20*time.Millisecond)
	require.Error(t, err)

	args, err := c.Request(context.Background(), "/slow", nil, 300*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int32(1), args[0].I)
}

func TestConcurrentRequestsSameAddressSerialize(t *testing.T) {
	c, tr := newTestCorrelator()
	tr.SetReply("/ch/01/mix/fader", mock.Reply{Args: []osc.Arg{osc.Float(0.5)}, Delay: 40 * time.Millisecond})

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Request(context.Background(), "/ch/01/mix/fader", nil, time.Second)
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	// three serialized 40ms round trips should take close to 120ms,
	// not ~40ms as they would if allowed to race concurrently.
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestCancellation(t *testing.T) {
	c, tr := newTestCorrelator()
	tr.SetReply("/slow", mock.Reply{Args: []osc.Arg{osc.Int(1)}, Delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Request(ctx, "/slow", nil, 5*time.Second)
	require.Error(t, err)
}

func TestUnmatchedSpontaneousEventPublished(t *testing.T) {
	bus := eventbus.New()
	tr := mock.New(bus)
	_ = New(xlog.NewDiscard(), bus, tr)
	sub := bus.Subscribe(eventbus.SceneLoaded)

	// the mock's handler is whatever the correlator installed; simulate a
	// spontaneous console push by sending through Send's reply path.
	tr.SetReply("/-show/prepos/current", mock.Reply{Args: []osc.Arg{osc.Int(7)}})
	require.NoError(t, tr.Send("/-show/prepos/current", nil))

	select {
	case ev := <-sub.Events():
		require.Equal(t, eventbus.SceneLoaded, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected scene-loaded event")
	}
}

func TestFailResolvesPendingWithTransportError(t *testing.T) {
	c, tr := newTestCorrelator()
	tr.SetReply("/slow", mock.Reply{Args: []osc.Arg{osc.Int(1)}, Delay: time.Second})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "/slow", nil, 5*time.Second)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Fail(nil)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected Fail to unblock pending request")
	}
}
