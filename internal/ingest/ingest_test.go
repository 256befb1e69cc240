package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.JPG", "1")
	writeFile(t, dir, "a.png", "2")
	writeFile(t, dir, "c.webp", "3")
	writeFile(t, dir, "notes.txt", "4")
	writeFile(t, dir, ".hidden.jpg", "5")
	writeFile(t, dir, ".htaccess", "6")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	names, err := ScanDirectory(dir, NewExtensionSet([]string{"jpg", ".jpeg", "PNG", "webp"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.JPG", "c.webp"}, names)
}

func TestScanDirectoryMissingRoot(t *testing.T) {
	_, err := ScanDirectory(filepath.Join(t.TempDir(), "absent"), NewExtensionSet([]string{"jpg"}))
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/srv/in", "x.jpg"), ResolvePath("/srv/in", "x.jpg"))
	assert.Equal(t, filepath.Join("/srv/in", "passwd"), ResolvePath("/srv/in", "../../etc/passwd"))
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.jpg", "hello")

	sum, err := Fingerprinter{SlowThreshold: time.Second}.Fingerprint(context.Background(), filepath.Join(dir, "hello.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
	assert.Len(t, sum, FingerprintLen)
}

func TestFingerprintMissingFile(t *testing.T) {
	_, err := Fingerprinter{}.Fingerprint(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type slowReader struct {
	delay time.Duration
	left  int
}

func (r *slowReader) Read(p []byte) (int, error) {
	time.Sleep(r.delay)
	if r.left == 0 {
		return 0, errors.New("unreachable")
	}
	r.left--
	p[0] = 'x'
	return 1, nil
}

func TestFingerprintSlow(t *testing.T) {
	f := Fingerprinter{SlowThreshold: 20 * time.Millisecond}
	_, err := f.FingerprintReader(context.Background(), &slowReader{delay: 15 * time.Millisecond, left: 100})
	assert.ErrorIs(t, err, ErrSlowFingerprint)
}

func TestFingerprintCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fingerprinter{SlowThreshold: time.Minute}.FingerprintReader(ctx, &slowReader{left: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
