package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	storedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Set(ctx, "k", []byte(`{"v":1}`), storedAt))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	payload, got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(payload))
	require.True(t, got.Equal(storedAt))

	_, _, err = reopened.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("}}} nope"), 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	_, _, err = s.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrNotFound)
}
