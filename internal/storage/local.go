package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps objects on the local filesystem below Root.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// resolve maps a store path to a filesystem path, refusing anything outside root.
func (s *LocalStore) resolve(p string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(p))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", p)
	}
	return full, nil
}

// Write streams r into a temporary file next to the target and renames it into place.
func (s *LocalStore) Write(ctx context.Context, p string, r io.Reader, size int64) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("failed to write %s: wrote %d bytes, expected %d", p, n, size)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", p, err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, wrapNotExist(p, err)
	}
	return f, nil
}

func (s *LocalStore) Stat(_ context.Context, p string) (FileInfo, error) {
	full, err := s.resolve(p)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return FileInfo{}, wrapNotExist(p, err)
	}
	return FileInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *LocalStore) Utimes(_ context.Context, p string, atime, mtime time.Time) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Chtimes(full, atime, mtime); err != nil {
		return wrapNotExist(p, err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		full, err := s.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func wrapNotExist(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return fmt.Errorf("%s: %w", p, err)
}

// ctxReader stops a long copy once the request is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
