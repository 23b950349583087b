package s3

import (
	"bytes"
	"context"
	"io"
	"platecore/internal/blob/core"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "bucket required")
}

func TestMockRoundTripKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	assert.Equal(t, core.DriverS3, store.Driver())

	info, err := store.Put(ctx, "snapshots/0001.yaml", strings.NewReader("version: 1\n"), core.PutOptions{
		ContentType: "application/yaml",
		Metadata:    map[string]string{"snapshot": "abc"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, len("version: 1\n"), info.Size)
	assert.Equal(t, "application/yaml", info.ContentType)
	assert.Equal(t, "abc", info.Metadata["snapshot"])
	assert.Equal(t, "mock", info.ETag)

	_, rc, err := store.Get(ctx, "snapshots/0001.yaml")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(body))
}

func TestMockMapsMissingKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	_, err := store.Head(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	deleted, err := store.Delete(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDecodeChunked(t *testing.T) {
	framed := "5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"
	out, err := decodeChunked([]byte(framed))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))

	_, err = decodeChunked([]byte("zz\r\n"))
	assert.Error(t, err)
	_, err = decodeChunked(bytes.Repeat([]byte("a"), 3))
	assert.Error(t, err)
}
