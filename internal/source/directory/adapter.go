package directory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/source"
)

// Adapter implements source.Source over a local directory tree
type Adapter struct {
	root   string
	items  []source.Item // Cached items
	loaded bool
}

// NewAdapter creates a new directory adapter
func NewAdapter(root string) *Adapter {
	return &Adapter{root: root}
}

// GetSourceID returns the unique identifier for this source
func (a *Adapter) GetSourceID() string {
	return "directory:" + filepath.Base(a.root)
}

// FetchBatch fetches a batch of items
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	// Load all items on first call
	if !a.loaded {
		if err := a.loadItems(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to load items: %w", err)
		}
		a.loaded = true
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil || startIndex < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if startIndex >= len(a.items) {
		return []source.Item{}, "", nil
	}

	endIndex := min(startIndex+limit, len(a.items))
	nextCursor := ""
	if endIndex < len(a.items) {
		nextCursor = strconv.Itoa(endIndex)
	}
	return a.items[startIndex:endIndex], nextCursor, nil
}

// Total returns the number of importable files under root.
func (a *Adapter) Total(ctx context.Context) (int, error) {
	if !a.loaded {
		if err := a.loadItems(ctx); err != nil {
			return 0, err
		}
		a.loaded = true
	}
	return len(a.items), nil
}

// loadItems walks root and keeps every file with a supported asset extension
func (a *Adapter) loadItems(ctx context.Context) error {
	if _, err := os.Stat(a.root); err != nil {
		return fmt.Errorf("import root: %w", err)
	}

	a.items = []source.Item{}
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") && path != a.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if domain.ValidateUploadFileName(domain.UploadFieldAssetData, name) != nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, _ := filepath.Rel(a.root, path)
		a.items = append(a.items, source.Item{
			SourceID:    filepath.ToSlash(relPath),
			LocalPath:   path,
			SidecarPath: findSidecar(path),
			ModTime:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", a.root, err)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].SourceID < a.items[j].SourceID
	})
	return nil
}

// findSidecar looks for IMG_1.jpg.xmp first, then IMG_1.xmp.
func findSidecar(path string) string {
	candidates := []string{
		path + ".xmp",
		strings.TrimSuffix(path, filepath.Ext(path)) + ".xmp",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
