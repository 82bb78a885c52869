// Package broker implements BrokerPeer (§4.6): a thin wrapper over a
// redis/go-redis pub/sub client that lets several server instances
// cooperate on one logical room — presence discovery, liveness, and
// replicated paint/chat/stroke/pointer frames.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanreisa/reichat-server/internal/room"
)

const (
	settleDelay  = 3 * time.Second
	pingInterval = 10 * time.Second
	pongWindow   = 6 * time.Second
)

var channels = []string{"collect", "provide", "ping", "pong", "system", "chat", "paint", "stroke", "pointer"}

// frame is the envelope every BrokerPeer message carries: at minimum the
// origin server id, used to drop loopback.
type frame struct {
	Server frameServer     `json:"server"`
	Target string          `json:"target,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Client json.RawMessage `json:"client,omitempty"`
}

type frameServer struct {
	ID string `json:"id"`
}

// Peer wraps a redis.Client's pub/sub surface as described in §4.6.
type Peer struct {
	rdb        *redis.Client
	keyPrefix  string
	instanceID string
	engine     *room.Engine
	log        *slog.Logger

	mu          sync.Mutex
	pendingPong map[string]bool
}

// New constructs a Peer. Call Run to start its subscribe loop and
// presence/liveness timers.
func New(rdb *redis.Client, keyPrefix, instanceID string, engine *room.Engine, log *slog.Logger) *Peer {
	return &Peer{
		rdb:        rdb,
		keyPrefix:  keyPrefix,
		instanceID: instanceID,
		engine:     engine,
		log:        log,
	}
}

func (p *Peer) channel(name string) string { return p.keyPrefix + name }

// Publish implements room.Publisher: marshal body, tag with this server's
// id, and publish on the named channel.
func (p *Peer) Publish(channelName string, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		p.log.Error("broker: publish marshal failed", "channel", channelName, "err", err)
		return
	}
	f := frame{Server: frameServer{ID: p.instanceID}}

	// chat/paint/stroke/pointer carry {client, body}; system carries
	// {body: string}; collect/provide carry {target[, body]}.
	switch channelName {
	case "system":
		f.Body = raw
	case "collect", "provide":
		var withTarget struct {
			Target string          `json:"target"`
			Body   json.RawMessage `json:"body,omitempty"`
		}
		if err := json.Unmarshal(raw, &withTarget); err == nil {
			f.Target = withTarget.Target
			f.Body = withTarget.Body
		}
	default:
		var withClient struct {
			Client json.RawMessage `json:"client"`
			Body   json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(raw, &withClient); err == nil {
			f.Client = withClient.Client
			f.Body = withClient.Body
		}
	}

	data, err := json.Marshal(f)
	if err != nil {
		p.log.Error("broker: frame marshal failed", "channel", channelName, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel(channelName), data).Err(); err != nil {
		p.log.Warn("broker: publish failed", "channel", channelName, "err", err)
	}
}

// Run subscribes to every BrokerPeer channel and starts the presence
// bootstrap and liveness loop. Blocks until ctx is cancelled.
func (p *Peer) Run(ctx context.Context) {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = p.channel(c)
	}
	sub := p.rdb.Subscribe(ctx, names...)
	defer sub.Close()

	go p.bootstrap(ctx)
	go p.livenessLoop(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.handleMessage(ctx, msg)
		}
	}
}

func (p *Peer) bootstrap(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(settleDelay):
	}
	p.Publish("collect", map[string]string{"target": "clients"})
}

func (p *Peer) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expected := p.engine.RemoteServerIDs()
			if len(expected) == 0 {
				continue
			}
			p.mu.Lock()
			p.pendingPong = make(map[string]bool, len(expected))
			for _, id := range expected {
				p.pendingPong[id] = true
			}
			p.mu.Unlock()

			p.Publish("ping", struct{}{})

			select {
			case <-ctx.Done():
				return
			case <-time.After(pongWindow):
			}

			p.mu.Lock()
			dead := make([]string, 0, len(p.pendingPong))
			for id := range p.pendingPong {
				dead = append(dead, id)
			}
			p.pendingPong = nil
			p.mu.Unlock()

			if len(dead) > 0 {
				p.log.Warn("broker: server(s) failed liveness check", "ids", dead)
				p.engine.RemotePrune(dead)
			}
		}
	}
}

func (p *Peer) handleMessage(ctx context.Context, msg *redis.Message) {
	var f frame
	if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
		p.log.Warn("broker: malformed frame", "err", err)
		return
	}
	if f.Server.ID == p.instanceID {
		return // loopback suppression (§4.6, invariant 6)
	}

	switch msg.Channel {
	case p.channel("collect"):
		p.Publish("provide", map[string]any{
			"target": "clients",
			"body":   p.engine.LocalOnline(),
		})
	case p.channel("provide"):
		var clients []room.DistClient
		if err := json.Unmarshal(f.Body, &clients); err == nil {
			p.engine.RemoteProvide(f.Server.ID, clients)
		}
	case p.channel("ping"):
		p.Publish("pong", struct{}{})
	case p.channel("pong"):
		p.mu.Lock()
		delete(p.pendingPong, f.Server.ID)
		p.mu.Unlock()
	case p.channel("system"):
		var text string
		if err := json.Unmarshal(f.Body, &text); err == nil {
			p.engine.SystemMessage(text)
		}
	case p.channel("chat"):
		var body struct {
			Message string `json:"message"`
			Time    int64  `json:"time"`
		}
		var client room.DistClient
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return
		}
		_ = json.Unmarshal(f.Client, &client)
		p.engine.RemoteChat(f.Server.ID, p.remoteClient(client), room.ChatPayload{Message: body.Message, Time: body.Time})
	case p.channel("paint"):
		var body room.PaintPayload
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return
		}
		var client room.DistClient
		_ = json.Unmarshal(f.Client, &client)
		p.engine.RemotePaint(f.Server.ID, p.remoteClient(client), body)
	case p.channel("stroke"):
		var body room.StrokePayload
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return
		}
		var client room.DistClient
		_ = json.Unmarshal(f.Client, &client)
		p.engine.RemoteStroke(f.Server.ID, p.remoteClient(client), body)
	case p.channel("pointer"):
		var body room.PointerPayload
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return
		}
		var client room.DistClient
		_ = json.Unmarshal(f.Client, &client)
		p.engine.RemotePointer(f.Server.ID, p.remoteClient(client), body)
	}
}

// remoteClient resolves a DistClient payload (as carried over the broker)
// to the locally tracked *room.Client record for the same uuid, falling
// back to a transient stand-in if the roster hasn't reconciled yet.
func (p *Peer) remoteClient(dc room.DistClient) *room.Client {
	if c := p.engine.Client(dc.UUID); c != nil {
		return c
	}
	return &room.Client{UUID: dc.UUID, Name: dc.Name, ServerID: dc.ServerID, IsOnline: true}
}
