package memory

import (
	"context"
	"platecore/pkg/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTripDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := domain.Snapshot{
		Version:     domain.SnapshotVersion,
		ID:          "mem",
		Grid:        domain.DefaultGrid,
		Templates:   domain.DefaultSections(domain.GlobalScope()),
		RecentFiles: []string{"a.csv"},
	}
	require.NoError(t, store.Save(ctx, snap))
	snap.RecentFiles[0] = "mutated.csv"

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a.csv"}, got.RecentFiles)
	assert.Len(t, got.Templates, 6)
	assert.Equal(t, 1, store.Saves())
	assert.NoError(t, store.Close())
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewStore()
	assert.ErrorIs(t, store.Save(ctx, domain.Snapshot{}), context.Canceled)
	_, _, err := store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
