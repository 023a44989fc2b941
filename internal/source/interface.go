package source

import (
	"context"
	"time"
)

// Item is one file offered for import.
type Item struct {
	SourceID    string // stable id within the source, used as the device asset id
	LocalPath   string
	SidecarPath string // empty when the file has no .xmp next to it
	ModTime     time.Time
}

// Source lists files to import in a stable order.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// FetchBatch returns up to limit items starting at cursor. An empty
	// nextCursor means there is nothing left.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}
