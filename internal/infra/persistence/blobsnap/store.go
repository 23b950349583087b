// Package blobsnap keeps workspace snapshots as YAML documents in a blob store.
// Every save writes a new object; Load returns the newest one.
package blobsnap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"platecore/internal/blob"
	"platecore/pkg/domain"
	"time"

	"gopkg.in/yaml.v3"
)

var _ domain.SnapshotStore = (*Store)(nil)

const (
	// DefaultPrefix is the key prefix under which snapshots are written.
	DefaultPrefix = "snapshots/"
	// DefaultKeep is how many snapshots survive a save.
	DefaultKeep = 10

	contentType = "application/yaml"
	stampLayout = "20060102T150405.000000000Z"
)

// Store writes snapshots to a blob.Store.
type Store struct {
	blobs  blob.Store
	prefix string
	keep   int
}

// Option customises a Store.
type Option func(*Store)

// WithPrefix changes the key prefix.
func WithPrefix(prefix string) Option { return func(s *Store) { s.prefix = prefix } }

// WithKeep sets how many snapshots are retained; n <= 0 keeps all of them.
func WithKeep(n int) Option { return func(s *Store) { s.keep = n } }

// New wraps blobs.
func New(blobs blob.Store, opts ...Option) *Store {
	s := &Store{blobs: blobs, prefix: DefaultPrefix, keep: DefaultKeep}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the object key a snapshot is saved under. Keys sort by export time.
func (s *Store) Key(snap domain.Snapshot) string {
	return fmt.Sprintf("%s%s-%s.yaml", s.prefix, snap.ExportedAt.UTC().Format(stampLayout), snap.ID)
}

// Save writes snap as a new object and prunes the oldest beyond the retention limit.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.blobs.Put(ctx, s.Key(snap), bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"snapshot-id": snap.ID, "version": fmt.Sprint(snap.Version)},
	}); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return s.prune(ctx)
}

func (s *Store) prune(ctx context.Context) error {
	if s.keep <= 0 {
		return nil
	}
	infos, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for i := 0; i < len(infos)-s.keep; i++ {
		if _, err := s.blobs.Delete(ctx, infos[i].Key); err != nil {
			return fmt.Errorf("prune %s: %w", infos[i].Key, err)
		}
	}
	return nil
}

// List returns the stored snapshot objects, oldest first.
func (s *Store) List(ctx context.Context) ([]blob.Info, error) {
	return s.blobs.List(ctx, s.prefix)
}

// Load decodes the newest snapshot.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	infos, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("list snapshots: %w", err)
	}
	if len(infos) == 0 {
		return domain.Snapshot{}, false, nil
	}
	snap, err := s.LoadKey(ctx, infos[len(infos)-1].Key)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return snap, true, nil
}

// LoadKey decodes one stored snapshot object.
func (s *Store) LoadKey(ctx context.Context, key string) (domain.Snapshot, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Close is a no-op; the blob store is owned by the caller.
func (s *Store) Close() error { return nil }

// stamp exposes the key timestamp layout to tests.
func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }
