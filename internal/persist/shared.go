package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SharedBackend tiers a local cache backend under a shared remote copy,
// the deployment mode where several clients (tabs, processes) operate on
// one backing store.
//
// Behavior:
//   - Reads within the freshness TTL serve the local cache and skip the
//     remote round trip entirely.
//   - A stale read refreshes the cache from the remote; a failing remote
//     degrades to the stale local copy instead of failing the read.
//   - Writes go local first, then through to the remote. Reconciliation
//     is last-writer-wins at whole-document granularity: a concurrent
//     writer in another instance can be overwritten inside the freshness
//     window. That is the documented consistency boundary, not a bug.
type SharedBackend struct {
	local  Backend
	remote Backend
	ttl    time.Duration
	log    *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu       sync.Mutex
	lastSync time.Time
}

// NewSharedBackend tiers local under remote with the given freshness
// TTL. logger may be nil.
func NewSharedBackend(local, remote Backend, ttl time.Duration, log *slog.Logger) *SharedBackend {
	if ttl <= 0 {
		ttl = 1500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &SharedBackend{
		local:  local,
		remote: remote,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

func (s *SharedBackend) Read(ctx context.Context) ([]byte, error) {
	if s.fresh() {
		return s.local.Read(ctx)
	}

	data, err := s.remote.Read(ctx)
	if err != nil {
		s.log.Warn("shared store remote unavailable, serving local copy", "err", err)
		return s.local.Read(ctx)
	}
	if data == nil {
		// Remote has no state yet; the local copy (possibly written
		// before the remote came up) stays authoritative.
		s.markSynced()
		return s.local.Read(ctx)
	}
	if err := s.local.Write(ctx, data); err != nil {
		return nil, err
	}
	s.markSynced()
	return data, nil
}

func (s *SharedBackend) Write(ctx context.Context, data []byte) error {
	if err := s.local.Write(ctx, data); err != nil {
		return err
	}
	// Best-effort write-through; the local copy stays authoritative for
	// this instance if the remote is down.
	if err := s.remote.Write(ctx, data); err != nil {
		s.log.Warn("shared store write-through failed", "err", err)
	}
	s.markSynced()
	return nil
}

func (s *SharedBackend) Clear(ctx context.Context) error {
	if err := s.local.Clear(ctx); err != nil {
		return err
	}
	if err := s.remote.Clear(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastSync = time.Time{}
	s.mu.Unlock()
	return nil
}

// SetNow replaces the clock; tests use it to step across the TTL.
func (s *SharedBackend) SetNow(now func() time.Time) { s.now = now }

func (s *SharedBackend) fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastSync.IsZero() && s.now().Sub(s.lastSync) < s.ttl
}

func (s *SharedBackend) markSynced() {
	s.mu.Lock()
	s.lastSync = s.now()
	s.mu.Unlock()
}
