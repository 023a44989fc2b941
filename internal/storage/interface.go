package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist is returned by Stat and Open when no object lives at the path.
var ErrNotExist = errors.New("storage: object does not exist")

// FileInfo describes a stored object.
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// ContentStore holds asset bytes under content-addressed paths.
// Paths are slash-separated and relative to the store root.
type ContentStore interface {
	// Write stores the content at path. The object is either fully written or absent.
	Write(ctx context.Context, path string, r io.Reader, size int64) error

	// Open streams the object at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Stat returns the size and modification time of the object at path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Utimes sets the access and modification times recorded for path.
	Utimes(ctx context.Context, path string, atime, mtime time.Time) error

	// Delete removes every path. Missing paths are not an error.
	Delete(ctx context.Context, paths ...string) error
}

// Exists reports whether an object is stored at path.
func Exists(ctx context.Context, store ContentStore, path string) (bool, error) {
	_, err := store.Stat(ctx, path)
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
