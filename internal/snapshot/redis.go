package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanreisa/reichat-server/internal/room"
)

const redisWriteTimeout = 3 * time.Second

// RedisStore persists each Layer to a broker key <prefix>layer:<n>, per
// §4.7. Selecting this backend disables filesystem persistence entirely.
type RedisStore struct {
	source    Source
	rdb       *redis.Client
	prefix    string
	expectedW int
	expectedH int
	log       *slog.Logger

	mu       sync.Mutex
	inFlight map[int]bool
	pending  map[int]bool
}

// NewRedisStore constructs a Redis-backed Store.
func NewRedisStore(source Source, rdb *redis.Client, prefix string, expectedW, expectedH int, log *slog.Logger) *RedisStore {
	return &RedisStore{
		source:    source,
		rdb:       rdb,
		prefix:    prefix,
		expectedW: expectedW,
		expectedH: expectedH,
		log:       log,
		inFlight:  make(map[int]bool),
		pending:   make(map[int]bool),
	}
}

func (s *RedisStore) key(n int) string {
	return fmt.Sprintf("%slayer:%d", s.prefix, n)
}

// Load attempts GET <prefix>layer:<n>. Same discard-on-dimension-mismatch
// rule as FSStore; an absent key is not an error.
func (s *RedisStore) Load(ctx context.Context, n int) (pix []byte, ok bool, err error) {
	raw, err := s.rdb.Get(ctx, s.key(n)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	decoded, w, h, err := room.DecodeRGBA(raw)
	if err != nil {
		s.log.Warn("snapshot: corrupt layer key, starting blank", "layer", n, "key", s.key(n), "err", err)
		return nil, false, nil
	}
	if w != s.expectedW || h != s.expectedH {
		s.log.Warn("snapshot: layer key dimensions mismatch, discarding", "layer", n, "want", [2]int{s.expectedW, s.expectedH}, "got", [2]int{w, h})
		return nil, false, nil
	}
	return decoded, true, nil
}

// ScheduleSave re-encodes and SETs Layer n's key on a background goroutine,
// coalescing bursts the same way FSStore does.
func (s *RedisStore) ScheduleSave(n int) {
	s.mu.Lock()
	if s.inFlight[n] {
		s.pending[n] = true
		s.mu.Unlock()
		return
	}
	s.inFlight[n] = true
	s.mu.Unlock()
	go s.flushLoop(n)
}

func (s *RedisStore) flushLoop(n int) {
	for {
		s.save(n)
		s.mu.Lock()
		if s.pending[n] {
			s.pending[n] = false
			s.mu.Unlock()
			continue
		}
		s.inFlight[n] = false
		s.mu.Unlock()
		return
	}
}

func (s *RedisStore) save(n int) {
	enc, err := s.source.EncodeLayer(n)
	if err != nil {
		s.log.Error("snapshot: encode failed", "layer", n, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()
	if err := s.rdb.Set(ctx, s.key(n), enc, 0).Err(); err != nil {
		s.log.Error("snapshot: redis set failed", "layer", n, "err", err)
	}
}
