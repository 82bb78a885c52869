package room

import "sync"

// Socket is the minimal outbound capability Roster needs from a transport
// session: enough to force-disconnect a superseded connection. SessionHub
// implements this over a websocket; Roster never imports the transport
// package, keeping the uuid->socket index a lookup, not an ownership edge.
type Socket interface {
	Close() error
}

// BindRequest is the validated payload of a client event (§4.4).
type BindRequest struct {
	UUID string
	Pin  string
	Name string
}

// Roster is the set of Clients keyed by uuid, plus a secondary index from
// uuid to the currently attached socket for locally hosted clients.
type Roster struct {
	mu      sync.Mutex
	clients map[string]*Client
	sockets map[string]Socket
}

// NewRoster returns an empty Roster.
func NewRoster() *Roster {
	return &Roster{
		clients: make(map[string]*Client),
		sockets: make(map[string]Socket),
	}
}

// Bind implements §4.3's bind operation. If req.UUID is present, has length
// 36, and (uuid, pin) matches an existing record, that Client is reused —
// its previously attached socket, if any, is returned for the caller to
// force-disconnect. Otherwise a fresh Client is allocated with a new
// uuid/pin. Name length must be validated by the caller before calling
// Bind; Bind itself does not reject — see SessionHub's client-event
// validation table.
func (r *Roster) Bind(req BindRequest, serverID, remoteAddr string) (client *Client, previous Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(req.UUID) == 36 {
		if existing, ok := r.clients[req.UUID]; ok && existing.Pin == req.Pin {
			previous = r.sockets[existing.UUID]
			existing.Name = req.Name
			existing.IsOnline = true
			existing.ServerID = serverID
			existing.RemoteAddr = remoteAddr
			delete(r.sockets, existing.UUID)
			return existing, previous
		}
	}

	c := &Client{
		UUID:       newUUID(),
		Pin:        newPin(),
		Name:       req.Name,
		IsOnline:   true,
		ServerID:   serverID,
		RemoteAddr: remoteAddr,
	}
	r.clients[c.UUID] = c
	return c, nil
}

// Attach records the socket now serving uuid. Call after Bind once the
// caller has force-disconnected any previous socket.
func (r *Roster) Attach(uuid string, sock Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sockets[uuid] = sock
}

// MarkOffline clears the uuid->socket index and sets IsOnline=false. The
// Client record itself is retained so the uuid/pin pair can still rebind.
func (r *Roster) MarkOffline(uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets, uuid)
	if c, ok := r.clients[uuid]; ok {
		c.IsOnline = false
	}
}

// Reconcile replaces all records whose ServerID == peerServerID with the
// given list, per §4.3. Used when a peer broadcasts its authoritative
// roster over the broker. Idempotent: applying the same (peerServerID,
// peerClients) twice yields the same state.
func (r *Roster) Reconcile(peerServerID string, peerClients []DistClient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for uuid, c := range r.clients {
		if c.ServerID == peerServerID {
			delete(r.clients, uuid)
			delete(r.sockets, uuid)
		}
	}
	for _, pc := range peerClients {
		r.clients[pc.UUID] = &Client{
			UUID:     pc.UUID,
			Name:     pc.Name,
			ServerID: pc.ServerID,
			IsOnline: true,
		}
	}
}

// PruneDeadServers removes every Client record hosted on any server id in
// ids.
func (r *Roster) PruneDeadServers(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dead := make(map[string]bool, len(ids))
	for _, id := range ids {
		dead[id] = true
	}
	for uuid, c := range r.clients {
		if dead[c.ServerID] {
			delete(r.clients, uuid)
			delete(r.sockets, uuid)
		}
	}
}

// SnapshotOnline returns the public projection of every online Client.
func (r *Roster) SnapshotOnline() []DistClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DistClient, 0, len(r.clients))
	for _, c := range r.clients {
		if c.IsOnline {
			out = append(out, c.Public())
		}
	}
	return out
}

// LocalOnline returns every online Client currently hosted on serverID —
// used by BrokerPeer to answer a "collect" demand with a "provide" frame.
func (r *Roster) LocalOnline(serverID string) []DistClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DistClient, 0)
	for _, c := range r.clients {
		if c.IsOnline && c.ServerID == serverID {
			out = append(out, c.Public())
		}
	}
	return out
}

// RemoteServerIDs returns the distinct non-self server ids currently
// represented in the roster — used by BrokerPeer's liveness loop to know
// who to expect a pong from.
func (r *Roster) RemoteServerIDs(selfID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.clients {
		if c.ServerID != "" && c.ServerID != selfID && !seen[c.ServerID] {
			seen[c.ServerID] = true
			out = append(out, c.ServerID)
		}
	}
	return out
}

// Get returns the Client for uuid, if any.
func (r *Roster) Get(uuid string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[uuid]
	return c, ok
}

// All returns every Client record, online or not.
func (r *Roster) All() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Seed inserts a Client record without marking it online — used at startup
// to pre-load ClientRecord rows from the durable store so stale uuid/pin
// pairs can still rebind after a process restart.
func (r *Roster) Seed(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c.UUID]; !exists {
		c.IsOnline = false
		r.clients[c.UUID] = c
	}
}
