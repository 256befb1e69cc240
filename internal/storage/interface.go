package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key has no stored content
var ErrNotFound = errors.New("storage: not found")

// FileInfo describes a stored file
type FileInfo struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Storage is the accepted-files area. Keys are filenames as recorded in the
// catalog.
type Storage interface {
	// Put stores the content read from r at key, replacing any previous content
	Put(ctx context.Context, key string, r io.Reader) (int64, error)

	// Open returns a reader for the content at key
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns information about the content at key
	Stat(ctx context.Context, key string) (*FileInfo, error)

	// Exists checks if content exists at key
	Exists(ctx context.Context, key string) (bool, error)

	// Rename moves the content at from to to, replacing anything at to
	Rename(ctx context.Context, from, to string) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Path returns the location recorded in the catalog for key
	Path(key string) string
}
