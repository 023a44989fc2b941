package repository

import (
	"context"

	"github.com/timmy/photovault/internal/domain"
)

// VectorQuery restricts a nearest-neighbour search to one owner scope and asset type.
type VectorQuery struct {
	Embedding   []float32
	OwnerIDs    []string
	Type        domain.AssetType
	ExcludeID   string
	MaxDistance float64
	Limit       int
}

// VectorNeighbor is a raw backend hit, before database filtering.
type VectorNeighbor struct {
	AssetID  string
	Distance float64
}

// VectorIndex is a similarity index over CLIP embeddings using cosine distance.
// Search returns neighbours with Distance <= MaxDistance, closest first.
type VectorIndex interface {
	Upsert(ctx context.Context, asset *domain.Asset, embedding []float32) error
	Delete(ctx context.Context, assetIDs ...string) error
	Search(ctx context.Context, q VectorQuery) ([]VectorNeighbor, error)
}
