// Command reichat-server runs the room engine described in spec.md: a
// multi-user real-time collaborative paint-and-chat room, optionally
// replicated across several server instances over a Redis broker.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanreisa/reichat-server/internal/broker"
	"github.com/kanreisa/reichat-server/internal/clientstore"
	"github.com/kanreisa/reichat-server/internal/config"
	"github.com/kanreisa/reichat-server/internal/httpapi"
	"github.com/kanreisa/reichat-server/internal/room"
	"github.com/kanreisa/reichat-server/internal/session"
	"github.com/kanreisa/reichat-server/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON configuration file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("component", "reichat-server")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	dataMode := room.DataModeNone
	switch {
	case cfg.BrokerEnabled():
		dataMode = room.DataModeBroker
	case cfg.FSPersistenceEnabled():
		dataMode = room.DataModeFS
	}
	instance := room.NewInstance(dataMode)
	log = log.With("serverId", instance.ID)
	log.Info("starting", "dataMode", dataMode, "title", cfg.Title)

	canvas := room.NewCanvas(cfg.CanvasWidth, cfg.CanvasHeight, cfg.LayerCount)
	roster := room.NewRoster()

	var rdb *redis.Client
	if cfg.BrokerEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisHost + ":" + portOrDefault(cfg.RedisPort, 6379),
			Password: cfg.RedisPassword,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Error("failed to connect to redis", "err", err)
			cancel()
			os.Exit(1)
		}
		cancel()
		log.Info("connected to redis")
	}

	var store room.Store
	switch dataMode {
	case room.DataModeFS:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			log.Error("failed to create data directory", "err", err)
			os.Exit(1)
		}
		store = snapshotFSStore(canvas, cfg, log)
	case room.DataModeBroker:
		store = snapshotRedisStore(canvas, rdb, cfg, log)
	}

	var persist room.ClientPersister
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cs, err := clientstore.Open(ctx, cfg.DatabaseURL, log)
		cancel()
		if err != nil {
			log.Warn("client store unavailable, continuing without durable roster persistence", "err", err)
		} else {
			persist = cs
			defer cs.Close()
			seedRoster(roster, cs, log)
		}
	}

	// Startup is gated on every Layer being either loaded or confirmed
	// absent before any socket is accepted, per §4.7.
	if store != nil {
		loadLayers(canvas, store, log)
	}
	log.Info("ready")

	roomConfig := room.Config{
		Title:        cfg.Title,
		CanvasWidth:  cfg.CanvasWidth,
		CanvasHeight: cfg.CanvasHeight,
		LayerCount:   cfg.LayerCount,
		Version:      room.VersionPair{Server: version.Server, Client: cfg.ClientVersion},
	}

	// Engine and BrokerPeer are mutually referential (Engine publishes
	// through Peer; Peer delivers inbound frames to Engine), so Engine is
	// built first with a pubHolder that's filled in once Peer exists.
	pubHolder := &lazyPublisher{}
	engine := room.NewEngine(instance, canvas, roster, pubHolder, store, persist, roomConfig, log)

	var peer *broker.Peer
	if cfg.BrokerEnabled() {
		peer = broker.New(rdb, cfg.RedisKeyPrefix, instance.ID, engine, log)
		pubHolder.set(peer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)
	if peer != nil {
		go peer.Run(ctx)
	}

	hub := session.NewHub(engine, instance.ID, cfg.LayerCount, cfg.CanvasWidth, cfg.CanvasHeight, cfg.TrustForwardedFor(), log)
	router := httpapi.New(engine, cfg.ClientDir)
	router.HandleFunc("/ws", hub.ServeWS)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	engine.Stop()
}

func portOrDefault(p, def int) string {
	if p == 0 {
		p = def
	}
	return strconv.Itoa(p)
}

// lazyPublisher defers to a room.Publisher set after construction, since
// Engine and BrokerPeer are mutually referential. Publish is a no-op until
// set is called (broker mode disabled).
type lazyPublisher struct {
	mu   sync.RWMutex
	peer room.Publisher
}

func (p *lazyPublisher) set(peer room.Publisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peer = peer
}

func (p *lazyPublisher) Publish(channel string, body any) {
	p.mu.RLock()
	peer := p.peer
	p.mu.RUnlock()
	if peer != nil {
		peer.Publish(channel, body)
	}
}
