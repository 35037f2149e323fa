// Package wsapi is the WebSocket push surface (C9's out-of-core
// consumer): one connection per client at /ws, fed by the event bus and
// driven by github.com/gorilla/websocket.
package wsapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/transport"
	"github.com/gravwell/x32mgr/internal/xlog"
)

// Session is the subset of the session transport the status snapshot
// needs.
type Session interface {
	State() transport.State
}

// envelope is the wire shape every pushed event and client command uses:
// {type, payload, timestamp}.
type envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// Handler upgrades to a WebSocket and relays the event bus to the client
// until the connection drops.
type Handler struct {
	log     *xlog.Logger
	bus     *eventbus.Bus
	session Session
}

func New(log *xlog.Logger, bus *eventbus.Bus, session Session) *Handler {
	return &Handler{log: log, bus: bus, session: session}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe() // all kinds
	defer sub.Close()

	readerDone := make(chan struct{})
	go h.readLoop(conn, readerDone)

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(envelope{Type: string(ev.Kind), Payload: ev.Payload, Timestamp: time.Now()}); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}

// readLoop drains client-initiated messages (ping / get_status) until the
// connection closes, so the one goroutine owning the socket read side
// never blocks the write loop above.
func (h *Handler) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteJSON(envelope{Type: "pong", Timestamp: time.Now()})
		case "get_status":
			state := transport.Disconnected
			if h.session != nil {
				state = h.session.State()
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteJSON(envelope{Type: "status", Payload: map[string]string{"state": state.String()}, Timestamp: time.Now()})
		}
	}
}
