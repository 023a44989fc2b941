package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/timmy/photovault/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateOutcome tags the result of AssetRepository.Create.
type CreateOutcome int

const (
	// Created means the row was inserted.
	Created CreateOutcome = iota
	// ConflictExisting means the owner already holds an asset with this checksum.
	ConflictExisting
)

// CreateResult is Created(Asset) or ConflictExisting(ExistingID).
type CreateResult struct {
	Outcome    CreateOutcome
	Asset      *domain.Asset
	ExistingID string
}

// AssetInclude selects the relations loaded by GetByID.
type AssetInclude struct {
	Exif        bool
	SmartSearch bool
	JobStatus   bool
}

// AssetRepository is the source of truth for asset records.
type AssetRepository struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create inserts asset. A (owner_id, checksum) unique violation is reported as
// ConflictExisting with the id of the row that won, not as an error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - asset: record to insert; ID must already be set.
//
// Returns:
//   - CreateResult: which of the two outcomes happened.
//   - error: non-nil for any other database failure.
func (r *AssetRepository) Create(ctx context.Context, asset *domain.Asset) (CreateResult, error) {
	err := r.db.WithContext(ctx).Create(asset).Error
	if err == nil {
		return CreateResult{Outcome: Created, Asset: asset}, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return CreateResult{}, fmt.Errorf("failed to create asset: %w", err)
	}

	existingID, lookupErr := r.GetUploadAssetIDByChecksum(ctx, asset.OwnerID, asset.Checksum)
	if lookupErr != nil {
		return CreateResult{}, fmt.Errorf("checksum conflict but existing asset not found: %w", lookupErr)
	}
	return CreateResult{Outcome: ConflictExisting, ExistingID: existingID}, nil
}

// Update writes the named columns of asset. Nil pointer fields among them are set to NULL.
// A checksum collision with another asset of the owner returns domain.ErrChecksumConflict.
func (r *AssetRepository) Update(ctx context.Context, asset *domain.Asset, columns ...string) error {
	q := r.db.WithContext(ctx).Model(asset)
	if len(columns) > 0 {
		q = q.Select(columns)
	} else {
		q = q.Select("*").Omit("id", "created_at", clause.Associations)
	}
	if err := q.Updates(asset).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to update asset %s: %w", asset.ID, domain.ErrChecksumConflict)
		}
		return fmt.Errorf("failed to update asset %s: %w", asset.ID, err)
	}
	return nil
}

// UpdateAll applies the same column values to every asset in ids.
func (r *AssetRepository) UpdateAll(ctx context.Context, ids []string, values map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).Where("id IN ?", ids).Updates(values).Error; err != nil {
		return fmt.Errorf("failed to update %d assets: %w", len(ids), err)
	}
	return nil
}

// GetByID retrieves an asset with the requested relations.
// Returns domain.ErrNotFound when no row matches.
func (r *AssetRepository) GetByID(ctx context.Context, id string, include AssetInclude) (*domain.Asset, error) {
	q := r.db.WithContext(ctx)
	if include.Exif {
		q = q.Preload("Exif")
	}
	if include.SmartSearch {
		q = q.Preload("SmartSearch")
	}
	if include.JobStatus {
		q = q.Preload("JobStatus")
	}

	var asset domain.Asset
	if err := q.First(&asset, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &asset, nil
}

// GetByChecksums returns the owner's assets whose checksum is among checksums.
func (r *AssetRepository) GetByChecksums(ctx context.Context, ownerID string, checksums [][]byte) ([]domain.Asset, error) {
	if len(checksums) == 0 {
		return []domain.Asset{}, nil
	}
	var assets []domain.Asset
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND checksum IN ?", ownerID, checksums).
		Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to get assets by checksums: %w", err)
	}
	return assets, nil
}

// GetUploadAssetIDByChecksum returns the id of the owner's asset with this checksum.
func (r *AssetRepository) GetUploadAssetIDByChecksum(ctx context.Context, ownerID string, checksum []byte) (string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).
		Where("owner_id = ? AND checksum = ?", ownerID, checksum).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", domain.ErrNotFound
	}
	return ids[0], nil
}

// GetByDeviceIDs returns which of deviceAssetIDs the owner already uploaded from deviceID.
func (r *AssetRepository) GetByDeviceIDs(ctx context.Context, ownerID, deviceID string, deviceAssetIDs []string) ([]string, error) {
	if len(deviceAssetIDs) == 0 {
		return []string{}, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).
		Where("owner_id = ? AND device_id = ? AND device_asset_id IN ?", ownerID, deviceID, deviceAssetIDs).
		Pluck("device_asset_id", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing device assets: %w", err)
	}
	return found, nil
}

// IsLivePhotoLinked reports whether any asset already points at videoID as its motion part.
func (r *AssetRepository) IsLivePhotoLinked(ctx context.Context, videoID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).
		Where("live_photo_video_id = ?", videoID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetReferencedPaths returns which of paths are still the original or sidecar of some asset.
func (r *AssetRepository) GetReferencedPaths(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return []string{}, nil
	}
	var rows []struct {
		OriginalPath string
		SidecarPath  *string
	}
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).
		Select("original_path, sidecar_path").
		Where("original_path IN ? OR sidecar_path IN ?", paths, paths).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to check referenced paths: %w", err)
	}

	wanted := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		wanted[p] = struct{}{}
	}
	seen := make(map[string]struct{})
	referenced := make([]string, 0, len(rows))
	mark := func(p string) {
		if _, ok := wanted[p]; !ok {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		referenced = append(referenced, p)
	}
	for _, row := range rows {
		mark(row.OriginalPath)
		if row.SidecarPath != nil {
			mark(*row.SidecarPath)
		}
	}
	return referenced, nil
}

// UpsertExif creates or replaces the exif row of an asset.
func (r *AssetRepository) UpsertExif(ctx context.Context, exif *domain.AssetExif) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		UpdateAll: true,
	}).Create(exif).Error
}

// UpsertSmartSearch stores the embedding computed for an asset.
func (r *AssetRepository) UpsertSmartSearch(ctx context.Context, row *domain.SmartSearch) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// StampMetadataExtracted records that metadata extraction ran for assetID.
func (r *AssetRepository) StampMetadataExtracted(ctx context.Context, assetID string, at time.Time) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"metadata_extracted_at"}),
	}).Create(&domain.AssetJobStatus{AssetID: assetID, MetadataExtractedAt: &at}).Error
}

// StampDuplicatesDetected records that duplicate detection evaluated every asset in ids.
func (r *AssetRepository) StampDuplicatesDetected(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]domain.AssetJobStatus, len(ids))
	for i, id := range ids {
		rows[i] = domain.AssetJobStatus{AssetID: id, DuplicatesDetectedAt: &at}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"duplicates_detected_at"}),
	}).Create(&rows).Error
}

// StreamDuplicateCandidates yields the ids of assets due for duplicate detection,
// reading them through a forward-only cursor. Without force only assets never
// evaluated, or evaluated before their embedding last changed, are yielded.
// The sequence can be ranged over once.
func (r *AssetRepository) StreamDuplicateCandidates(ctx context.Context, force bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		q := r.db.WithContext(ctx).Model(&domain.Asset{}).
			Select("assets.id").
			Joins("JOIN smart_search ON smart_search.asset_id = assets.id").
			Where("assets.status = ? AND assets.visibility = ? AND assets.stack_id IS NULL",
				domain.AssetStatusActive, domain.AssetVisibilityTimeline)
		if !force {
			q = q.Joins("LEFT JOIN asset_job_status ON asset_job_status.asset_id = assets.id").
				Where("(asset_job_status.duplicates_detected_at IS NULL OR asset_job_status.duplicates_detected_at < smart_search.updated_at)")
		}

		rows, err := q.Order("assets.id").Rows()
		if err != nil {
			yield("", fmt.Errorf("failed to stream duplicate candidates: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				yield("", err)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield("", err)
		}
	}
}
