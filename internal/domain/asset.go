package domain

import (
	"encoding/hex"
	"time"

	"github.com/pgvector/pgvector-go"
)

// AssetType is the media kind of an asset.
type AssetType string

const (
	AssetTypeImage AssetType = "image"
	AssetTypeVideo AssetType = "video"
	AssetTypeOther AssetType = "other"
)

// AssetVisibility controls where an asset is shown.
// Values include AssetVisibilityTimeline, AssetVisibilityHidden, AssetVisibilityLocked and AssetVisibilityArchive.
type AssetVisibility string

const (
	AssetVisibilityTimeline AssetVisibility = "timeline"
	AssetVisibilityHidden   AssetVisibility = "hidden"
	AssetVisibilityLocked   AssetVisibility = "locked"
	AssetVisibilityArchive  AssetVisibility = "archive"
)

// AssetStatus is the lifecycle state of an asset record.
type AssetStatus string

const (
	AssetStatusActive  AssetStatus = "active"
	AssetStatusTrashed AssetStatus = "trashed"
)

// Asset represents one media item owned by a user.
// The (owner_id, checksum) pair is unique; a violation on insert means the owner already has this content.
type Asset struct {
	ID               string          `gorm:"type:text;primaryKey" json:"id"`
	OwnerID          string          `gorm:"type:text;not null;uniqueIndex:idx_assets_owner_checksum,priority:1;index:idx_assets_owner_device,priority:1" json:"owner_id"`
	DeviceID         string          `gorm:"type:text;index:idx_assets_owner_device,priority:2" json:"device_id"`
	DeviceAssetID    string          `gorm:"type:text;index:idx_assets_owner_device,priority:3" json:"device_asset_id"`
	Type             AssetType       `gorm:"type:text;not null" json:"type"`
	OriginalPath     string          `gorm:"type:text;not null" json:"original_path"`
	OriginalFileName string          `gorm:"type:text;not null" json:"original_file_name"`
	Checksum         []byte          `gorm:"not null;uniqueIndex:idx_assets_owner_checksum,priority:2" json:"-"`
	FileCreatedAt    time.Time       `json:"file_created_at"`
	FileModifiedAt   time.Time       `json:"file_modified_at"`
	LocalDateTime    time.Time       `json:"local_date_time"`
	Duration         string          `gorm:"type:text" json:"duration,omitempty"`
	Visibility       AssetVisibility `gorm:"type:text;not null;default:timeline" json:"visibility"`
	Status           AssetStatus     `gorm:"type:text;not null;default:active;index:idx_assets_status" json:"status"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
	StackID          *string         `gorm:"type:text;index:idx_assets_stack" json:"stack_id,omitempty"`
	DuplicateID      *string         `gorm:"type:text;index:idx_assets_duplicate" json:"duplicate_id,omitempty"`
	LivePhotoVideoID *string         `gorm:"type:text;index:idx_assets_live_photo" json:"live_photo_video_id,omitempty"`
	SidecarPath      *string         `gorm:"type:text" json:"sidecar_path,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Exif        *AssetExif      `gorm:"foreignKey:AssetID;references:ID;constraint:OnDelete:CASCADE" json:"exif,omitempty"`
	SmartSearch *SmartSearch    `gorm:"foreignKey:AssetID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	JobStatus   *AssetJobStatus `gorm:"foreignKey:AssetID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for Asset.
func (Asset) TableName() string {
	return "assets"
}

// ChecksumHex returns the checksum encoded as lowercase hex.
func (a *Asset) ChecksumHex() string {
	return hex.EncodeToString(a.Checksum)
}

// IsTrashed reports whether the asset sits in the owner's trash.
func (a *Asset) IsTrashed() bool {
	return a.Status == AssetStatusTrashed
}

// IsTimelineVisible reports whether the asset takes part in duplicate detection.
// Hidden, locked and archived assets are excluded, as are trashed ones.
func (a *Asset) IsTimelineVisible() bool {
	return a.Visibility == AssetVisibilityTimeline && !a.IsTrashed()
}

// Embedding returns the CLIP embedding, or nil when the asset has not been processed yet.
func (a *Asset) Embedding() []float32 {
	if a.SmartSearch == nil {
		return nil
	}
	return a.SmartSearch.Embedding.Slice()
}

// AssetExif holds the extracted file metadata for an asset.
type AssetExif struct {
	AssetID         string    `gorm:"type:text;primaryKey" json:"asset_id"`
	FileSizeInByte  int64     `json:"file_size_in_byte"`
	ExifImageWidth  int       `json:"exif_image_width,omitempty"`
	ExifImageHeight int       `json:"exif_image_height,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for AssetExif.
func (AssetExif) TableName() string {
	return "asset_exif"
}

// SmartSearch stores the CLIP embedding computed for an asset.
type SmartSearch struct {
	AssetID   string          `gorm:"type:text;primaryKey"`
	Embedding pgvector.Vector `gorm:"type:vector;not null"`
	Model     string          `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName returns the database table name for SmartSearch.
func (SmartSearch) TableName() string {
	return "smart_search"
}

// AssetJobStatus records when background jobs last evaluated an asset.
type AssetJobStatus struct {
	AssetID              string `gorm:"type:text;primaryKey"`
	MetadataExtractedAt  *time.Time
	DuplicatesDetectedAt *time.Time
}

// TableName returns the database table name for AssetJobStatus.
func (AssetJobStatus) TableName() string {
	return "asset_job_status"
}
