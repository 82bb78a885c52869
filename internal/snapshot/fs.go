package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kanreisa/reichat-server/internal/room"
)

// FSStore persists each Layer to a distinct file at
// <dataDir>/<prefix>layer<n>.png, per §4.7.
type FSStore struct {
	source    Source
	dataDir   string
	prefix    string
	expectedW int
	expectedH int
	log       *slog.Logger

	mu       sync.Mutex
	inFlight map[int]bool
	pending  map[int]bool
}

// NewFSStore constructs a filesystem-backed Store. dataDir must already
// exist (creating it is the caller's fatal-startup responsibility, per
// §7).
func NewFSStore(source Source, dataDir, prefix string, expectedW, expectedH int, log *slog.Logger) *FSStore {
	return &FSStore{
		source:    source,
		dataDir:   dataDir,
		prefix:    prefix,
		expectedW: expectedW,
		expectedH: expectedH,
		log:       log,
		inFlight:  make(map[int]bool),
		pending:   make(map[int]bool),
	}
}

func (s *FSStore) path(n int) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%slayer%d.png", s.prefix, n))
}

// Load reads Layer n's persisted file, if any, and decodes it. If the
// decoded image's dimensions don't match the configured Canvas dimensions
// it is discarded (ok=false) and a warning logged, per §4.7/§7. A missing
// file is not an error: the Layer simply starts blank.
func (s *FSStore) Load(ctx context.Context, n int) (pix []byte, ok bool, err error) {
	raw, err := os.ReadFile(s.path(n))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	decoded, w, h, err := room.DecodeRGBA(raw)
	if err != nil {
		s.log.Warn("snapshot: corrupt layer file, starting blank", "layer", n, "path", s.path(n), "err", err)
		return nil, false, nil
	}
	if w != s.expectedW || h != s.expectedH {
		s.log.Warn("snapshot: layer file dimensions mismatch, discarding", "layer", n, "want", [2]int{s.expectedW, s.expectedH}, "got", [2]int{w, h})
		return nil, false, nil
	}
	return decoded, true, nil
}

// ScheduleSave re-encodes and overwrites Layer n's file on a background
// goroutine. Concurrent calls while a save is already in flight coalesce
// into exactly one more flush, matching the "next-tick" debounce described
// in §4.7.
func (s *FSStore) ScheduleSave(n int) {
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

func (s *FSStore) flushLoop(n int) {
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

func (s *FSStore) save(n int) {
	enc, err := s.source.EncodeLayer(n)
	if err != nil {
		s.log.Error("snapshot: encode failed", "layer", n, "err", err)
		return
	}
	path := s.path(n)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, enc, 0o644); err != nil {
		s.log.Error("snapshot: write failed", "layer", n, "err", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.log.Error("snapshot: rename failed", "layer", n, "err", err)
	}
}
