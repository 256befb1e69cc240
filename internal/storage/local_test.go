package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return s
}

func TestLocalStoragePutOpen(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	n, err := s.Put(ctx, "sunset.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	ok, err := s.Exists(ctx, "sunset.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Open(ctx, "sunset.jpg")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	info, err := s.Stat(ctx, "sunset.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
}

func TestLocalStorageMissing(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Open(ctx, "nope.png")
	assert.True(t, errors.Is(err, ErrNotFound))

	ok, err := s.Exists(ctx, "nope.png")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "nope.png"))
}

func TestLocalStorageTraversal(t *testing.T) {
	s := newTestStorage(t)

	p := s.Path("../../etc/passwd")
	assert.True(t, strings.HasPrefix(p, s.BasePath()), "path %s escaped base", p)
}

func TestLocalStorageListAndDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, k := range []string{"b.png", "a.jpg", "c.webp"} {
		_, err := s.Put(ctx, k, strings.NewReader(k))
		require.NoError(t, err)
	}

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.png", "c.webp"}, keys)

	require.NoError(t, s.Delete(ctx, "b.png"))
	_, err = os.Stat(s.Path("b.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStoragePutCancelled(t *testing.T) {
	s := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "x.jpg", strings.NewReader("data"))
	assert.Error(t, err)

	ok, err := s.Exists(context.Background(), "x.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageRename(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Put(ctx, ".upload-staged", strings.NewReader("new"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "a.jpg", strings.NewReader("old"))
	require.NoError(t, err)

	require.NoError(t, s.Rename(ctx, ".upload-staged", "a.jpg"))
	data, err := os.ReadFile(s.Path("a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg"}, keys)

	assert.ErrorIs(t, s.Rename(ctx, "missing", "b.jpg"), ErrNotFound)
}
