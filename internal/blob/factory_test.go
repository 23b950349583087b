package blob

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	fsStore, err := Open(ctx, Config{FSRoot: filepath.Join(t.TempDir(), "blobs")})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fsStore.Driver())

	mem, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, mem.Driver())

	_, err = Open(ctx, Config{Driver: "tape"})
	require.ErrorContains(t, err, "unknown blob driver tape")

	_, err = Open(ctx, Config{Driver: DriverS3})
	require.ErrorContains(t, err, "bucket required")
}

func TestStoresShareSemantics(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	stores := map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     NewMockS3ForTests(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := store.Put(ctx, "snapshots/b.yaml", bytes.NewBufferString("b"), PutOptions{ContentType: "application/yaml"})
			require.NoError(t, err)
			_, err = store.Put(ctx, "snapshots/a.yaml", bytes.NewBufferString("aa"), PutOptions{})
			require.NoError(t, err)
			_, err = store.Put(ctx, "sources/p1.csv", bytes.NewBufferString("x"), PutOptions{})
			require.NoError(t, err)

			_, err = store.Put(ctx, "snapshots/a.yaml", bytes.NewBufferString("again"), PutOptions{})
			assert.ErrorIs(t, err, ErrExists)

			infos, err := store.List(ctx, "snapshots/")
			require.NoError(t, err)
			require.Len(t, infos, 2)
			assert.Equal(t, "snapshots/a.yaml", infos[0].Key)
			assert.Equal(t, "snapshots/b.yaml", infos[1].Key)

			info, rc, err := store.Get(ctx, "snapshots/a.yaml")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			require.NoError(t, err)
			assert.Equal(t, "aa", string(body))
			assert.EqualValues(t, 2, info.Size)

			_, err = store.Head(ctx, "snapshots/missing.yaml")
			assert.ErrorIs(t, err, ErrNotFound)
			_, _, err = store.Get(ctx, "snapshots/missing.yaml")
			assert.ErrorIs(t, err, ErrNotFound)

			deleted, err := store.Delete(ctx, "snapshots/a.yaml")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = store.Delete(ctx, "snapshots/a.yaml")
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestStoresRejectUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, store := range []Store{fsStore, NewMemory(), NewMockS3ForTests()} {
		for _, key := range []string{"", "  ", "/etc/passwd", "../up.yaml", "snapshots/../../x"} {
			_, err := store.Put(ctx, key, bytes.NewBufferString("x"), PutOptions{})
			assert.Error(t, err, "%s accepted key %q", store.Driver(), key)
		}
	}
	_, err = fsStore.Put(ctx, "snapshots/a.yaml.meta", bytes.NewBufferString("x"), PutOptions{})
	assert.Error(t, err, "sidecar suffix is reserved")
}
