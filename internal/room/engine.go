package room

import (
	"context"
	"log/slog"
	"time"
)

// Outbound is the fan-out capability Engine needs from a locally attached
// socket session. SessionHub's per-connection type implements it. Send is
// reliable (must be queued, per §5's backpressure rule for paint/chat/
// roster events); SendVolatile may silently drop under backpressure
// (stroke/pointer).
type Outbound interface {
	Socket
	UUID() string
	Send(kind string, payload any)
	SendVolatile(kind string, payload any)
}

// Publisher is the capability Engine needs from a BrokerPeer: publish a
// frame body on a named channel, tagged with this server's id so peers can
// drop their own loopback.
type Publisher interface {
	Publish(channel string, body any)
}

// Store is the capability Engine needs from a SnapshotStore: load a
// Layer's persisted pixels at startup and schedule a re-encode-and-save
// after a local edit. Implemented by internal/snapshot without importing
// this package (structural interface satisfaction).
type Store interface {
	Load(ctx context.Context, n int) (pix []byte, ok bool, err error)
	ScheduleSave(n int)
}

// ClientPersister is the capability Engine needs from a ClientStore
// (SPEC_FULL.md §4.8): a durable ledger entry refreshed on every bind and
// disconnect. Optional — a nil ClientPersister simply means no durable
// roster persistence.
type ClientPersister interface {
	Upsert(ctx context.Context, c *Client)
}

// Engine is the central arbiter described in §4.5. All Canvas and Roster
// mutation happens inside its single run loop; everything else is a
// concurrent producer posting to its event queue.
type Engine struct {
	instance *Instance
	canvas   *Canvas
	roster   *Roster
	store    Store           // nil if persistence disabled
	pub      Publisher       // nil if broker mode disabled
	persist  ClientPersister // nil if durable roster ledger disabled

	config Config
	log    *slog.Logger

	events  chan any
	sockets map[string]Outbound // uuid -> locally attached socket
	done    chan struct{}
}

// NewEngine constructs an Engine. pub, store, and persist may be nil to
// disable multi-server coordination, layer persistence, and the durable
// roster ledger respectively.
func NewEngine(instance *Instance, canvas *Canvas, roster *Roster, pub Publisher, store Store, persist ClientPersister, config Config, log *slog.Logger) *Engine {
	e := &Engine{
		instance: instance,
		canvas:   canvas,
		roster:   roster,
		store:    store,
		pub:      pub,
		persist:  persist,
		config:   config,
		log:      log,
		events:   make(chan any, 256),
		sockets:  make(map[string]Outbound),
		done:     make(chan struct{}),
	}
	for n := 0; n < canvas.LayerCount(); n++ {
		layer := canvas.Layer(n)
		ln := n
		layer.OnChangeOrUpdate(func(kind ChangeKind) {
			if kind == Change && e.store != nil {
				e.store.ScheduleSave(ln)
			}
		})
	}
	return e
}

// Run starts the single actor loop. Blocks until ctx is cancelled or Stop
// is called; intended to run in its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case msg := <-e.events:
			e.dispatch(msg)
		}
	}
}

// Stop halts the run loop after draining no further events (callers should
// stop submitting first).
func (e *Engine) Stop() { close(e.done) }

// Submit enqueues a reliable event; blocks if the queue is full (paint,
// chat, and roster events must never be silently dropped per §5).
func (e *Engine) Submit(msg any) {
	e.events <- msg
}

// --- message types -------------------------------------------------------

type evBind struct {
	req    BindRequest
	sock   Outbound
	remote string // remoteAddr for the new/rebound Client
	reply  chan bindReply
}

type bindReply struct {
	client *Client
}

type evDisconnect struct{ uuid string }

type evPaint struct {
	local    bool
	fromSrv  string
	client   *Client
	payload  PaintPayload
	origUUID string
}

type evStroke struct {
	local    bool
	fromSrv  string
	client   *Client
	payload  StrokePayload
	origUUID string
}

type evPointer struct {
	local    bool
	fromSrv  string
	client   *Client
	payload  PointerPayload
	origUUID string
}

type evChat struct {
	local    bool
	fromSrv  string
	client   *Client // nil for system messages
	payload  ChatPayload
	origUUID string
}

type evSystemChat struct{ text string }

type evRemoteProvide struct {
	serverID string
	clients  []DistClient
}

type evRemotePrune struct{ ids []string }

// --- public submission helpers -------------------------------------------

// Bind performs a roster bind synchronously (the caller needs the
// resulting Client before it can finish handling the client event).
func (e *Engine) Bind(req BindRequest, sock Outbound, remoteAddr string) *Client {
	reply := make(chan bindReply, 1)
	e.events <- evBind{req: req, sock: sock, remote: remoteAddr, reply: reply}
	return (<-reply).client
}

func (e *Engine) Disconnect(uuid string)                   { e.events <- evDisconnect{uuid: uuid} }
func (e *Engine) LocalPaint(c *Client, p PaintPayload, orig string) {
	e.events <- evPaint{local: true, fromSrv: e.instance.ID, client: c, payload: p, origUUID: orig}
}
func (e *Engine) RemotePaint(fromSrv string, c *Client, p PaintPayload) {
	e.events <- evPaint{local: false, fromSrv: fromSrv, client: c, payload: p}
}
func (e *Engine) LocalStroke(c *Client, p StrokePayload, orig string) {
	e.events <- evStroke{local: true, fromSrv: e.instance.ID, client: c, payload: p, origUUID: orig}
}
func (e *Engine) RemoteStroke(fromSrv string, c *Client, p StrokePayload) {
	e.events <- evStroke{local: false, fromSrv: fromSrv, client: c, payload: p}
}
func (e *Engine) LocalPointer(c *Client, p PointerPayload, orig string) {
	e.events <- evPointer{local: true, fromSrv: e.instance.ID, client: c, payload: p, origUUID: orig}
}
func (e *Engine) RemotePointer(fromSrv string, c *Client, p PointerPayload) {
	e.events <- evPointer{local: false, fromSrv: fromSrv, client: c, payload: p}
}
func (e *Engine) LocalChat(c *Client, p ChatPayload, orig string) {
	e.events <- evChat{local: true, fromSrv: e.instance.ID, client: c, payload: p, origUUID: orig}
}
func (e *Engine) RemoteChat(fromSrv string, c *Client, p ChatPayload) {
	e.events <- evChat{local: false, fromSrv: fromSrv, client: c, payload: p}
}
func (e *Engine) SystemMessage(text string) { e.events <- evSystemChat{text: text} }

// Client re-resolves a Client by uuid. Roster has its own internal mutex,
// so this is safe to call from any goroutine without routing through the
// run loop — only mutations to Canvas/Roster state need that serialization.
func (e *Engine) Client(uuid string) *Client {
	c, ok := e.roster.Get(uuid)
	if !ok {
		return nil
	}
	return c
}

// RoomConfig returns the distributable room configuration sent on connect
// and served at GET /config.
func (e *Engine) RoomConfig() Config { return e.config }

// Canvas exposes the owned Canvas for read-only HTTP handlers (/canvas,
// /layers/<n>). Flatten and EncodeLayer never mutate Layer state.
func (e *Engine) Canvas() *Canvas { return e.canvas }

// Instance exposes the owning server Instance (id, data mode).
func (e *Engine) Instance() *Instance { return e.instance }

// LocalOnline returns every online Client currently hosted on this
// instance — used by BrokerPeer to answer a "collect" demand.
func (e *Engine) LocalOnline() []DistClient { return e.roster.LocalOnline(e.instance.ID) }

// RemoteServerIDs returns the distinct non-self server ids currently
// represented in the roster — used by BrokerPeer's liveness loop.
func (e *Engine) RemoteServerIDs() []string { return e.roster.RemoteServerIDs(e.instance.ID) }
func (e *Engine) RemoteProvide(serverID string, clients []DistClient) {
	e.events <- evRemoteProvide{serverID: serverID, clients: clients}
}
func (e *Engine) RemotePrune(ids []string) { e.events <- evRemotePrune{ids: ids} }

// --- dispatch --------------------------------------------------------------

func (e *Engine) dispatch(msg any) {
	switch m := msg.(type) {
	case evBind:
		e.handleBind(m)
	case evDisconnect:
		e.handleDisconnect(m)
	case evPaint:
		e.handlePaint(m)
	case evStroke:
		e.handleStroke(m)
	case evPointer:
		e.handlePointer(m)
	case evChat:
		e.handleChat(m)
	case evSystemChat:
		e.handleSystemChat(m.text)
	case evRemoteProvide:
		e.roster.Reconcile(m.serverID, m.clients)
		e.broadcastRoster()
	case evRemotePrune:
		e.roster.PruneDeadServers(m.ids)
		e.broadcastRoster()
	default:
		e.log.Warn("engine: unknown event", "type", msg)
	}
}

func (e *Engine) handleBind(m evBind) {
	req := m.req
	c, previous := e.roster.Bind(req, e.instance.ID, m.remote)
	if previous != nil {
		_ = previous.Close()
	}
	e.roster.Attach(c.UUID, m.sock)
	e.sockets[c.UUID] = m.sock

	m.sock.Send("client", map[string]string{"uuid": c.UUID, "name": c.Name, "pin": c.Pin})
	e.broadcastRoster()
	e.systemChat("! " + c.Name + " has join.")
	e.persistAsync(c)

	m.reply <- bindReply{client: c}
}

func (e *Engine) handleDisconnect(m evDisconnect) {
	c, ok := e.roster.Get(m.uuid)
	name := m.uuid
	if ok {
		name = c.Name
	}
	delete(e.sockets, m.uuid)
	e.roster.MarkOffline(m.uuid)
	e.broadcastRoster()
	e.systemChat("! " + name + " has left.")
	if c != nil {
		e.persistAsync(c)
	}
	if e.pub != nil {
		e.pub.Publish("provide", map[string]any{
			"target": "clients",
			"body":   e.roster.LocalOnline(e.instance.ID),
		})
	}
}

func (e *Engine) handlePaint(m evPaint) {
	layer := e.canvas.Layer(m.payload.LayerNumber)
	if layer == nil {
		return
	}
	pix, w, h, err := DecodeRGBA(m.payload.Data)
	if err != nil {
		e.log.Warn("engine: paint decode failed", "err", err)
		return
	}
	kind := Update
	if m.local {
		kind = Change
	}
	layer.Write(pix, m.payload.X, m.payload.Y, w, h, kind)

	dist := DistClient{}
	if m.client != nil {
		dist = m.client.Public()
	}
	payload := map[string]any{
		"client":      dist,
		"layerNumber": m.payload.LayerNumber,
		"mode":        m.payload.Mode,
		"x":           m.payload.X,
		"y":           m.payload.Y,
		"data":        m.payload.Data,
	}
	// origUUID is only set for local events, so remote (replicated) paint
	// fans out to every local socket with no exclusion.
	for uuid, sock := range e.sockets {
		if uuid == m.origUUID {
			continue
		}
		sock.Send("paint", payload)
	}
	if m.local {
		if orig, ok := e.sockets[m.origUUID]; ok {
			orig.Send("painted", nil)
		}
		if e.pub != nil {
			e.pub.Publish("paint", clientBodyFrame(dist, payload))
		}
	}
}

func (e *Engine) handleStroke(m evStroke) {
	dist := DistClient{}
	if m.client != nil {
		dist = m.client.Public()
	}
	payload := map[string]any{"client": dist, "points": m.payload.Points}
	for uuid, sock := range e.sockets {
		if uuid == m.origUUID {
			continue
		}
		sock.SendVolatile("stroke", payload)
	}
	if m.local && e.pub != nil {
		e.pub.Publish("stroke", clientBodyFrame(dist, map[string]any{"points": m.payload.Points}))
	}
}

func (e *Engine) handlePointer(m evPointer) {
	dist := DistClient{}
	if m.client != nil {
		dist = m.client.Public()
	}
	payload := map[string]any{"client": dist, "x": m.payload.X, "y": m.payload.Y}
	for uuid, sock := range e.sockets {
		if uuid == m.origUUID {
			continue
		}
		sock.SendVolatile("pointer", payload)
	}
	if m.local && e.pub != nil {
		e.pub.Publish("pointer", clientBodyFrame(dist, map[string]any{"x": m.payload.X, "y": m.payload.Y}))
	}
}

func (e *Engine) handleChat(m evChat) {
	if m.payload.Time == 0 {
		m.payload.Time = nowMillis()
	}
	dist := DistClient{}
	if m.client != nil {
		dist = m.client.Public()
	}
	payload := map[string]any{"client": dist, "message": m.payload.Message, "time": m.payload.Time}
	for _, sock := range e.sockets {
		sock.Send("chat", payload)
	}
	if m.local && e.pub != nil {
		e.pub.Publish("chat", clientBodyFrame(dist, map[string]any{"message": m.payload.Message, "time": m.payload.Time}))
	}
}

func (e *Engine) handleSystemChat(text string) {
	e.systemChat(text)
	if e.pub != nil {
		e.pub.Publish("system", map[string]string{"body": text})
	}
}

func (e *Engine) systemChat(text string) {
	payload := map[string]any{"message": text, "time": nowMillis()}
	for _, sock := range e.sockets {
		sock.Send("chat", payload)
	}
}

func (e *Engine) broadcastRoster() {
	list := e.roster.SnapshotOnline()
	for _, sock := range e.sockets {
		sock.Send("clients", list)
	}
}

// persistAsync fires a best-effort durable-ledger upsert without blocking
// the run loop; a copy of c is taken since c is retained by the Roster and
// must not be mutated concurrently by the persistence goroutine.
func (e *Engine) persistAsync(c *Client) {
	if e.persist == nil {
		return
	}
	snapshot := *c
	go e.persist.Upsert(context.Background(), &snapshot)
}

func clientBodyFrame(client DistClient, body any) map[string]any {
	return map[string]any{"client": client, "body": body}
}

func nowMillis() int64 { return time.Now().UnixMilli() }
