package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/photovault/internal/domain"
	"gorm.io/gorm"
)

// PgvectorIndex searches the smart_search table directly with the pgvector
// cosine distance operator. Rows are written by AssetRepository.UpsertSmartSearch
// and removed by the foreign key cascade, so Upsert and Delete have nothing to do.
type PgvectorIndex struct {
	db *gorm.DB
}

// NewPgvectorIndex creates a PgvectorIndex and its HNSW index on smart_search.
func NewPgvectorIndex(ctx context.Context, db *gorm.DB) (*PgvectorIndex, error) {
	if !IsPostgres(db) {
		return nil, fmt.Errorf("pgvector index requires postgres, got %s", db.Dialector.Name())
	}
	err := db.WithContext(ctx).Exec(
		"CREATE INDEX IF NOT EXISTS idx_smart_search_embedding ON smart_search USING hnsw (embedding vector_cosine_ops)",
	).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding index: %w", err)
	}
	return &PgvectorIndex{db: db}, nil
}

func (p *PgvectorIndex) Upsert(context.Context, *domain.Asset, []float32) error { return nil }

func (p *PgvectorIndex) Delete(context.Context, ...string) error { return nil }

func (p *PgvectorIndex) Search(ctx context.Context, q VectorQuery) ([]VectorNeighbor, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	vec := pgvector.NewVector(q.Embedding)

	var rows []struct {
		AssetID  string
		Distance float64
	}
	err := p.db.WithContext(ctx).Raw(`
		SELECT assets.id AS asset_id, smart_search.embedding <=> ? AS distance
		FROM smart_search
		JOIN assets ON assets.id = smart_search.asset_id
		WHERE assets.owner_id IN ? AND assets.type = ? AND assets.id <> ?
		  AND smart_search.embedding <=> ? <= ?
		ORDER BY distance
		LIMIT ?`,
		vec, q.OwnerIDs, q.Type, q.ExcludeID, vec, q.MaxDistance, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}

	out := make([]VectorNeighbor, len(rows))
	for i, row := range rows {
		out[i] = VectorNeighbor{AssetID: row.AssetID, Distance: row.Distance}
	}
	return out, nil
}
