package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_ReadMissing(t *testing.T) {
	b := NewFileBackend()
	_, err := b.Read(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend_WriteCreatesDirectoryAndReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".state", "seen.json")
	b := NewFileBackend()

	require.NoError(t, b.Write(ctx, path, []byte(`{"a":1}`)))
	require.NoError(t, b.Write(ctx, path, []byte(`{"b":2}`)))

	data, err := b.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(data))

	// no temp files left next to the artifact
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryBackend_CopiesData(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	buf := []byte("hello")
	require.NoError(t, b.Write(ctx, "k", buf))
	buf[0] = 'j'

	data, err := b.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = b.Read(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorruptError_Unwrap(t *testing.T) {
	inner := errors.New("bad json")
	err := error(&CorruptError{Key: "seen.json", Err: inner})

	var corrupt *CorruptError
	require.True(t, errors.As(err, &corrupt))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "seen.json")
}

func TestValkeyBackend_RoundTrip(t *testing.T) {
	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		t.Skip("VALKEY_ADDR not set")
	}

	b, err := NewValkeyBackend(addr, os.Getenv("VALKEY_PASSWORD"))
	if err != nil {
		t.Skipf("valkey not available: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	key := "test:" + t.Name()
	require.NoError(t, b.Write(ctx, key, []byte("payload")))

	data, err := b.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = b.Read(ctx, key+":missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
