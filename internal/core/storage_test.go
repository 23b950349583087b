package core

import (
	"context"
	"path/filepath"
	"platecore/internal/blob"
	"platecore/internal/infra/persistence/blobsnap"
	"platecore/internal/infra/persistence/memory"
	"platecore/internal/infra/persistence/sqlite"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSnapshotStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenSnapshotStore(ctx, StorageConfig{Driver: StorageMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, mem)

	path := filepath.Join(t.TempDir(), "ws.db")
	def, err := OpenSnapshotStore(ctx, StorageConfig{SQLitePath: path})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = def.Close() })
	require.IsType(t, &sqlite.Store{}, def)
	assert.Equal(t, path, def.(*sqlite.Store).Path())

	bs, err := OpenSnapshotStore(ctx, StorageConfig{Driver: StorageBlob, Blob: blob.Config{Driver: blob.DriverMemory}, BlobKeep: 3})
	require.NoError(t, err)
	assert.IsType(t, &blobsnap.Store{}, bs)

	_, err = OpenSnapshotStore(ctx, StorageConfig{Driver: "tape"})
	require.ErrorContains(t, err, "unknown storage driver tape")
}
