package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanreisa/reichat-server/internal/clientstore"
	"github.com/kanreisa/reichat-server/internal/config"
	"github.com/kanreisa/reichat-server/internal/room"
	"github.com/kanreisa/reichat-server/internal/snapshot"
)

const defaultLoadTimeout = 5 * time.Second

func snapshotFSStore(canvas *room.Canvas, cfg config.Config, log *slog.Logger) room.Store {
	return snapshot.NewFSStore(canvas, cfg.DataDir, cfg.DataFilePrefix, cfg.CanvasWidth, cfg.CanvasHeight, log)
}

func snapshotRedisStore(canvas *room.Canvas, rdb *redis.Client, cfg config.Config, log *slog.Logger) room.Store {
	return snapshot.NewRedisStore(canvas, rdb, cfg.RedisKeyPrefix, cfg.CanvasWidth, cfg.CanvasHeight, log)
}

// loadLayers blocks until every Layer has either been loaded from the
// configured Store or confirmed absent, per §4.7's startup-gating rule.
func loadLayers(canvas *room.Canvas, store room.Store, log *slog.Logger) {
	ctx := context.Background()
	for n := 0; n < canvas.LayerCount(); n++ {
		pix, ok, err := store.Load(ctx, n)
		if err != nil {
			log.Warn("snapshot: load failed, starting blank", "layer", n, "err", err)
			continue
		}
		if ok {
			canvas.Layer(n).Load(pix)
		}
	}
}

// seedRoster pre-loads every durable ClientRecord so a uuid/pin pair can
// still rebind after a process restart, per SPEC_FULL.md §4.8.
func seedRoster(roster *room.Roster, cs *clientstore.Store, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultLoadTimeout)
	defer cancel()
	records, err := cs.LoadAll(ctx)
	if err != nil {
		log.Warn("client store: load failed, starting with empty durable ledger", "err", err)
		return
	}
	for _, c := range records {
		roster.Seed(c)
	}
}
