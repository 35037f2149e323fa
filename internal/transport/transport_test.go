package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/xlog"
)

// pickPort binds an ephemeral UDP port and immediately releases it so the
// caller can hand the number to a Session, accepting the small race any
// "find a free port" trick has.
func pickPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	require.NoError(t, err)
	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())
	return port
}

func TestSessionOpenTransitionsToConnectedOnXinfoReply(t *testing.T) {
	bus := eventbus.New()
	consolePort := pickPort(t)

	consoleConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: consolePort})
	require.NoError(t, err)
	defer consoleConn.Close()

	// stand in for the console: answer the probe's /xinfo with a reply.
	go func() {
		buf := make([]byte, 4096)
		n, addr, err := consoleConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msgs, err := osc.Decode(buf[:n])
		if err != nil || len(msgs) == 0 {
			return
		}
		reply, _ := osc.Encode("/xinfo", []osc.Arg{
			osc.String("127.0.0.1"), osc.String("FOH"), osc.String("X32"), osc.String("4.08"),
		})
		consoleConn.WriteToUDP(reply, addr)
	}()

	sess := New(xlog.NewDiscard(), bus, "127.0.0.1", consolePort, 10*time.Second)
	defer sess.Close()

	require.NoError(t, sess.Open(0))
	require.Eventually(t, func() bool { return sess.State() == Connected }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionIgnoresXinfoReplyArrivingAfterProbeWindow(t *testing.T) {
	bus := eventbus.New()
	consolePort := pickPort(t)

	consoleConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: consolePort})
	require.NoError(t, err)
	defer consoleConn.Close()

	// stand in for a console that answers, but only long after the probe
	// window has already closed.
	go func() {
		buf := make([]byte, 4096)
		n, addr, err := consoleConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if _, err := osc.Decode(buf[:n]); err != nil {
			return
		}
		time.Sleep(probeWindow + 300*time.Millisecond)
		reply, _ := osc.Encode("/xinfo", []osc.Arg{
			osc.String("127.0.0.1"), osc.String("FOH"), osc.String("X32"), osc.String("4.08"),
		})
		consoleConn.WriteToUDP(reply, addr)
	}()

	sess := New(xlog.NewDiscard(), bus, "127.0.0.1", consolePort, 10*time.Second)
	defer sess.Close()

	require.NoError(t, sess.Open(0))
	require.Equal(t, Connecting, sess.State())

	// the stale reply should never flip the session to Connected.
	require.Never(t, func() bool { return sess.State() == Connected }, probeWindow+800*time.Millisecond, 50*time.Millisecond)
	require.Equal(t, Connecting, sess.State())
}

func TestSessionSendRequiresOpen(t *testing.T) {
	bus := eventbus.New()
	sess := New(xlog.NewDiscard(), bus, "127.0.0.1", 10023, time.Second)
	err := sess.Send("/xinfo", nil)
	require.Error(t, err)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	bus := eventbus.New()
	sess := New(xlog.NewDiscard(), bus, "127.0.0.1", pickPort(t), time.Second)
	require.NoError(t, sess.Open(0))
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	require.Equal(t, Disconnected, sess.State())
}

func TestSessionHandlerReceivesDecodedMessages(t *testing.T) {
	bus := eventbus.New()
	consolePort := pickPort(t)
	consoleConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: consolePort})
	require.NoError(t, err)
	defer consoleConn.Close()

	received := make(chan string, 4)
	sess := New(xlog.NewDiscard(), bus, "127.0.0.1", consolePort, 10*time.Second)
	sess.SetHandler(func(address string, args []osc.Arg) {
		received <- address
	})
	defer sess.Close()
	require.NoError(t, sess.Open(0))

	// drain the probe send so the goroutine above doesn't need a reply
	// for this test; send a spontaneous update straight back instead.
	buf := make([]byte, 4096)
	consoleConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, addr, err := consoleConn.ReadFromUDP(buf)
	require.NoError(t, err)

	update, _ := osc.Encode("/-show/prepos/current", []osc.Arg{osc.Int(5)})
	_, err = consoleConn.WriteToUDP(update, addr)
	require.NoError(t, err)

	select {
	case addr := <-received:
		require.Equal(t, "/-show/prepos/current", addr)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler to fire")
	}
}
