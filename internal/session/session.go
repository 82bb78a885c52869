// Package session implements the per-socket lifecycle described in §4.4:
// it owns one client's websocket connection, validates inbound events, and
// forwards them to the shared Engine. It never mutates Canvas or Roster
// state directly — that serialization happens inside the Engine's single
// run loop.
package session

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kanreisa/reichat-server/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20 // 16 MiB, generous enough for an uncompressed layer-sized patch
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the set of room-level collaborators a Session needs: the Engine
// to forward validated events to, and the room's fixed geometry for
// validation bounds.
type Hub struct {
	engine     *room.Engine
	instanceID string
	layerCount int
	width      int
	height     int
	trustXFF   bool
	log        *slog.Logger
}

// NewHub constructs a Hub bound to one Engine/Canvas geometry. trustXFF
// mirrors §6's forwardedHeaderType == "XFF" option: when true, the
// X-Forwarded-For header is trusted for remote-addr logging instead of the
// raw peer address.
func NewHub(engine *room.Engine, instanceID string, layerCount, width, height int, trustXFF bool, log *slog.Logger) *Hub {
	return &Hub{engine: engine, instanceID: instanceID, layerCount: layerCount, width: width, height: height, trustXFF: trustXFF, log: log}
}

// ServeWS upgrades the HTTP request to a websocket and runs the session
// until the socket closes. Intended to be wired as an http.HandlerFunc.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("session: upgrade failed", "err", err)
		return
	}

	remote := r.RemoteAddr
	if h.trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			remote = xff
		}
	}
	s := &Session{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		remote:  remote,
		log:     h.log,
	}

	go s.writePump()
	s.readPump() // blocks until the socket closes; runs on this request goroutine
}

// Session is one connected socket. It implements room.Outbound and
// room.Socket so the Engine can address it without depending on
// gorilla/websocket.
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
	log    *slog.Logger

	uuid string // set once bound
}

// UUID returns the currently bound client's uuid, or "" before binding.
func (s *Session) UUID() string { return s.uuid }

// Close force-disconnects the socket. Safe to call more than once.
func (s *Session) Close() error { return s.conn.Close() }

// Send enqueues a reliable event. If the outbound buffer is already full
// the client is assumed to be unresponsive and the socket is closed rather
// than blocking the Engine's single run loop — the same non-blocking
// select-with-default idiom as a standard gorilla/websocket broadcast hub,
// just escalated to a disconnect instead of a silent drop for reliable
// event kinds.
func (s *Session) Send(kind string, payload any) {
	raw, err := wireEncode(kind, payload)
	if err != nil {
		s.log.Error("session: encode failed", "kind", kind, "err", err)
		return
	}
	select {
	case s.send <- raw:
	default:
		s.log.Warn("session: outbound buffer full, disconnecting", "uuid", s.uuid)
		_ = s.conn.Close()
	}
}

// SendVolatile enqueues a best-effort event; if the outbound buffer is
// full it is silently dropped (per §5's backpressure rule for stroke and
// pointer events).
func (s *Session) SendVolatile(kind string, payload any) {
	raw, err := wireEncode(kind, payload)
	if err != nil {
		return
	}
	select {
	case s.send <- raw:
	default:
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump() {
	defer func() {
		if s.uuid != "" {
			s.hub.engine.Disconnect(s.uuid)
		}
		close(s.send)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.Send("server", map[string]string{"id": s.hub.instanceID})
	s.Send("config", s.hub.currentConfig())

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue // malformed inbound event: reject silently, no side effects
		}

		switch env.Type {
		case "client":
			s.handleClient(env)
		case "paint":
			s.handlePaint(env)
		case "stroke":
			s.handleStroke(env)
		case "pointer":
			s.handlePointer(env)
		case "chat":
			s.handleChat(env)
		default:
			// unrecognized event kind: dropped silently
		}
	}
}

func (s *Session) handleClient(env inboundEnvelope) {
	req, ok := validateClient(env)
	if !ok {
		return
	}
	c := s.hub.engine.Bind(req, s, s.remote)
	s.uuid = c.UUID
}

// resolveClient re-fetches the bound Client by uuid rather than caching a
// reference, since the Roster may have been reconciled or pruned across a
// suspension boundary between events (§9's "weak references" rule).
func (s *Session) resolveClient() *room.Client {
	return s.hub.engine.Client(s.uuid)
}

func (s *Session) handlePaint(env inboundEnvelope) {
	if s.uuid == "" {
		return // events before a successful bind are dropped silently
	}
	p, ok := validatePaint(env, s.hub.layerCount)
	if !ok {
		return
	}
	c := s.resolveClient()
	if c == nil {
		return
	}
	s.hub.engine.LocalPaint(c, p, s.uuid)
}

func (s *Session) handleStroke(env inboundEnvelope) {
	if s.uuid == "" {
		return
	}
	p, ok := validateStroke(env, s.hub.width, s.hub.height)
	if !ok {
		return
	}
	c := s.resolveClient()
	if c == nil {
		return
	}
	s.hub.engine.LocalStroke(c, p, s.uuid)
}

func (s *Session) handlePointer(env inboundEnvelope) {
	if s.uuid == "" {
		return
	}
	p, ok := validatePointer(env, s.hub.width, s.hub.height)
	if !ok {
		return
	}
	c := s.resolveClient()
	if c == nil {
		return
	}
	s.hub.engine.LocalPointer(c, p, s.uuid)
}

func (s *Session) handleChat(env inboundEnvelope) {
	if s.uuid == "" {
		return
	}
	p, ok := validateChat(env)
	if !ok {
		return
	}
	c := s.resolveClient()
	if c == nil {
		return
	}
	s.hub.engine.LocalChat(c, p, s.uuid)
}

func (h *Hub) currentConfig() room.Config {
	return h.engine.RoomConfig()
}
