// Package memory provides an in-memory snapshot store used for tests and
// ephemeral workspaces.
package memory

import (
	"context"
	"platecore/internal/infra/persistence/buckets"
	"platecore/pkg/domain"
	"sync"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.SnapshotStore = (*Store)(nil)

// Store holds the encoded buckets of the last saved snapshot, so a loaded snapshot
// never aliases the one that was saved.
type Store struct {
	mu    sync.RWMutex
	raw   map[string][]byte
	saves int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Save replaces the held snapshot.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := buckets.Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	s.saves++
	return nil
}

// Load decodes the held snapshot.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return buckets.Decode(s.raw)
}

// Saves returns how many snapshots have been saved.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
