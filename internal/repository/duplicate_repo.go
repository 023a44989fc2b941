package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/timmy/photovault/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DuplicateRepository is the duplicate index: vector neighbours from a VectorIndex,
// cluster membership in assets.duplicate_id.
type DuplicateRepository struct {
	db      *gorm.DB
	vectors VectorIndex
	limit   int
}

// NewDuplicateRepository creates a DuplicateRepository. searchLimit caps the
// number of neighbours considered per asset.
func NewDuplicateRepository(db *gorm.DB, vectors VectorIndex, searchLimit int) *DuplicateRepository {
	return &DuplicateRepository{db: db, vectors: vectors, limit: searchLimit}
}

// Search returns the neighbours of s.AssetID within s.MaxDistance, ordered by
// (distance, asset id). Only active timeline or archive assets outside a stack
// are kept, and every hit carries the neighbour's current duplicate id.
func (r *DuplicateRepository) Search(ctx context.Context, s domain.DuplicateSearch) ([]domain.DuplicateHit, error) {
	neighbors, err := r.vectors.Search(ctx, VectorQuery{
		Embedding:   s.Embedding,
		OwnerIDs:    s.OwnerIDs,
		Type:        s.Type,
		ExcludeID:   s.AssetID,
		MaxDistance: s.MaxDistance,
		Limit:       r.limit,
	})
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if n.AssetID != s.AssetID {
			ids = append(ids, n.AssetID)
		}
	}

	var rows []struct {
		ID          string
		DuplicateID *string
	}
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).
		Select("id, duplicate_id").
		Where("id IN ?", ids).
		Where("owner_id IN ? AND type = ?", s.OwnerIDs, s.Type).
		Where("status = ? AND visibility IN ? AND stack_id IS NULL", domain.AssetStatusActive,
			[]domain.AssetVisibility{domain.AssetVisibilityTimeline, domain.AssetVisibilityArchive}).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load duplicate candidates: %w", err)
	}
	current := make(map[string]*string, len(rows))
	for _, row := range rows {
		current[row.ID] = row.DuplicateID
	}

	hits := make([]domain.DuplicateHit, 0, len(rows))
	for _, n := range neighbors {
		dupID, ok := current[n.AssetID]
		if !ok || n.Distance > s.MaxDistance {
			continue
		}
		hits = append(hits, domain.DuplicateHit{AssetID: n.AssetID, Distance: n.Distance, DuplicateID: dupID})
	}
	SortHits(hits)
	return hits, nil
}

// SortHits orders hits by distance, breaking ties by asset id.
func SortHits(hits []domain.DuplicateHit) {
	slices.SortStableFunc(hits, func(a, b domain.DuplicateHit) int {
		return compareNeighbors(
			VectorNeighbor{AssetID: a.AssetID, Distance: a.Distance},
			VectorNeighbor{AssetID: b.AssetID, Distance: b.Distance},
		)
	})
}

// Merge moves m.AssetIDs and all members of the m.SourceIDs clusters onto m.TargetID
// in one transaction. On postgres the target cluster is serialized with an
// advisory lock and the touched rows are locked FOR UPDATE.
func (r *DuplicateRepository) Merge(ctx context.Context, m domain.DuplicateMerge) error {
	if m.TargetID == "" {
		return fmt.Errorf("merge without target id")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCluster(tx, m.TargetID); err != nil {
			return err
		}

		// Clusters the reassigned assets leave behind; they may shrink to one member.
		var left []string
		if len(m.AssetIDs) > 0 {
			var prior []domain.Asset
			if err := lockedAssets(tx).
				Select("id", "duplicate_id").
				Where("id IN ? AND duplicate_id IS NOT NULL AND duplicate_id <> ?", m.AssetIDs, m.TargetID).
				Find(&prior).Error; err != nil {
				return err
			}
			for _, a := range prior {
				if !slices.Contains(left, *a.DuplicateID) {
					left = append(left, *a.DuplicateID)
				}
			}
			if err := tx.Model(&domain.Asset{}).
				Where("id IN ?", m.AssetIDs).
				Update("duplicate_id", m.TargetID).Error; err != nil {
				return fmt.Errorf("failed to assign assets to %s: %w", m.TargetID, err)
			}
		}

		sources := slices.DeleteFunc(slices.Clone(m.SourceIDs), func(id string) bool { return id == m.TargetID })
		if len(sources) > 0 {
			var locked []string
			if err := lockedAssets(tx).Where("duplicate_id IN ?", sources).Pluck("id", &locked).Error; err != nil {
				return err
			}
			if err := tx.Model(&domain.Asset{}).
				Where("duplicate_id IN ?", sources).
				Update("duplicate_id", m.TargetID).Error; err != nil {
				return fmt.Errorf("failed to fold clusters into %s: %w", m.TargetID, err)
			}
		}

		return dissolveSingletons(tx, left)
	})
}

// Remove takes assetID out of its cluster. If a single member remains the
// cluster is dissolved in the same transaction.
func (r *DuplicateRepository) Remove(ctx context.Context, assetID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dupIDs []string
		if err := tx.Model(&domain.Asset{}).
			Where("id = ? AND duplicate_id IS NOT NULL", assetID).
			Pluck("duplicate_id", &dupIDs).Error; err != nil {
			return err
		}
		if len(dupIDs) == 0 {
			return nil
		}
		if err := lockCluster(tx, dupIDs[0]); err != nil {
			return err
		}
		if err := tx.Model(&domain.Asset{}).
			Where("id = ?", assetID).
			Update("duplicate_id", nil).Error; err != nil {
			return fmt.Errorf("failed to clear duplicate id of %s: %w", assetID, err)
		}
		return dissolveSingletons(tx, dupIDs)
	})
}

// GetAll returns every cluster of at least two active assets owned by ownerIDs.
func (r *DuplicateRepository) GetAll(ctx context.Context, ownerIDs []string) ([]domain.DuplicateGroup, error) {
	var assets []domain.Asset
	if err := r.db.WithContext(ctx).
		Preload("Exif").
		Where("owner_id IN ? AND duplicate_id IS NOT NULL AND status = ?", ownerIDs, domain.AssetStatusActive).
		Order("duplicate_id, local_date_time, id").
		Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to list duplicates: %w", err)
	}

	var groups []domain.DuplicateGroup
	for _, asset := range assets {
		if n := len(groups); n == 0 || groups[n-1].DuplicateID != *asset.DuplicateID {
			groups = append(groups, domain.DuplicateGroup{DuplicateID: *asset.DuplicateID})
		}
		g := &groups[len(groups)-1]
		g.AssetIDs = append(g.AssetIDs, asset.ID)
		g.Assets = append(g.Assets, asset)
	}
	return slices.DeleteFunc(groups, func(g domain.DuplicateGroup) bool { return len(g.AssetIDs) < 2 }), nil
}

func lockCluster(tx *gorm.DB, duplicateID string) error {
	if !IsPostgres(tx) {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", duplicateID).Error; err != nil {
		return fmt.Errorf("failed to lock cluster %s: %w", duplicateID, err)
	}
	return nil
}

func lockedAssets(tx *gorm.DB) *gorm.DB {
	q := tx.Model(&domain.Asset{})
	if IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// dissolveSingletons clears duplicate_id on clusters among ids left with one member.
func dissolveSingletons(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var single []string
	if err := tx.Model(&domain.Asset{}).
		Select("duplicate_id").
		Where("duplicate_id IN ?", ids).
		Group("duplicate_id").
		Having("COUNT(*) < 2").
		Pluck("duplicate_id", &single).Error; err != nil {
		return err
	}
	if len(single) == 0 {
		return nil
	}
	if err := tx.Model(&domain.Asset{}).
		Where("duplicate_id IN ?", single).
		Update("duplicate_id", nil).Error; err != nil {
		return fmt.Errorf("failed to dissolve clusters: %w", err)
	}
	return nil
}
