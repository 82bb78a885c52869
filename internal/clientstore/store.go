// Package clientstore implements the supplemental ClientStore component
// (SPEC_FULL.md §2/§4.8): a Postgres-backed ledger of (uuid, pin, name)
// rows so a full process restart can still honor a client's rebind, beyond
// what the in-memory Roster alone survives. It is a convenience, not a
// correctness requirement — failures degrade to in-memory-only behavior.
package clientstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanreisa/reichat-server/internal/room"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	uuid TEXT PRIMARY KEY,
	pin TEXT NOT NULL,
	name TEXT NOT NULL,
	last_seen_ms BIGINT NOT NULL
)`

// Store persists ClientRecord rows through a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects to Postgres and ensures the clients table exists. Returns
// nil, err if either step fails — the caller should log and fall back to
// running without durable roster persistence rather than treating this as
// fatal.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// Upsert persists or refreshes one Client's durable record.
func (s *Store) Upsert(ctx context.Context, c *room.Client) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (uuid, pin, name, last_seen_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uuid) DO UPDATE SET pin = $2, name = $3, last_seen_ms = $4
	`, c.UUID, c.Pin, c.Name, time.Now().UnixMilli())
	if err != nil {
		s.log.Warn("clientstore: upsert failed", "uuid", c.UUID, "err", err)
	}
}

// LoadAll returns every persisted ClientRecord, used to pre-seed the
// Roster at startup so stale uuid/pin pairs still rebind after a restart.
func (s *Store) LoadAll(ctx context.Context) ([]*room.Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT uuid, pin, name FROM clients`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*room.Client
	for rows.Next() {
		var uuid, pin, name string
		if err := rows.Scan(&uuid, &pin, &name); err != nil {
			return nil, err
		}
		out = append(out, &room.Client{UUID: uuid, Pin: pin, Name: name})
	}
	return out, rows.Err()
}
