// Package signaling implements the WebSocket Signaling front-end (C8):
// chunked-JSON reassembly, command dispatch, and per-connection state,
// grounded on the teacher's gorilla/websocket Hub/ReadPump/WritePump
// shape but rebuilt around a single active session rather than rooms.
package signaling

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/n0remac/pi-webrtc-streamer/internal/session"
)

const (
	maxReassemblyRetries = 5
	writeWait            = 10 * time.Second
	pongWait             = 60 * time.Second
	pingPeriod           = (pongWait * 9) / 10
	maxMessageSize        = 1 << 20
)

// Hooks lets the application root wire the Hub to the rest of the
// system (Session Proxy, Config Registry, Encoder Wrapper) without this
// package importing them directly, keeping the signaling front-end a
// thin adapter over an external handler contract, as spec.md's
// "HTTP/WebSocket transport is out of scope" calls for.
type Hooks struct {
	DeviceID func() string

	// OnRegister is invoked when a peer successfully obtains the session
	// slot. sendToPeer writes a "send" envelope back over this
	// connection; the returned deliver func receives inbound "send"
	// messages (stringified SDP/ICE) for the WebRTC stack.
	OnRegister func(peerID string, sendToPeer func(text string) error) (deliver func(text string), err error)
	OnRelease  func(peerID string)

	ConfigRead  func() map[string]any
	ConfigPatch func(patch map[string]any) []string
	ConfigSave  func() error
	ConfigReset func()
	ConfigApply func() error
}

// Hub owns the upgrade path and the set of connected clients.
type Hub struct {
	proxy *session.Proxy
	hooks Hooks

	upgrader websocket.Upgrader
}

// NewHub builds a Hub bound to proxy using hooks to reach the rest of
// the system.
func NewHub(proxy *session.Proxy, hooks Hooks) *Hub {
	return &Hub{
		proxy: proxy,
		hooks: hooks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its read/write pumps until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[signaling] upgrade failed: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 32),
		hub:  h,
	}
	go c.writePump()
	c.readPump()
}

// client is a single WebSocket connection's state, including the
// Chunked-Frame Buffer the reassembly algorithm uses.
type client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	peerID   string
	roomID   string
	hasPeer  bool

	chunk   []byte
	retries int
}

func (c *client) readPump() {
	defer func() {
		c.conn.Close()
		if c.hasPeer {
			c.hub.proxy.Release("ws", c.peerID)
			if c.hub.hooks.OnRelease != nil {
				c.hub.hooks.OnRelease(c.peerID)
			}
		}
		close(c.send)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[signaling] read error: %v", err)
			}
			return
		}
		c.handleIncoming(raw)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEnvelope marshals and enqueues an outbound envelope, matching the
// gorilla/websocket Hub's buffered-send-channel pattern so a slow client
// never blocks the read pump.
func (c *client) sendEnvelope(env any) {
	data, err := marshalEnvelope(env)
	if err != nil {
		log.Printf("[signaling] failed to marshal outbound envelope: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[signaling] send buffer full for client %s, dropping", c.id)
	}
}
