package service

import (
	"context"
	"iter"
	"time"

	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/repository"
)

// AssetRepository is the slice of the asset store used by the services.
type AssetRepository interface {
	Create(ctx context.Context, asset *domain.Asset) (repository.CreateResult, error)
	Update(ctx context.Context, asset *domain.Asset, columns ...string) error
	UpdateAll(ctx context.Context, ids []string, values map[string]interface{}) error
	GetByID(ctx context.Context, id string, include repository.AssetInclude) (*domain.Asset, error)
	GetByChecksums(ctx context.Context, ownerID string, checksums [][]byte) ([]domain.Asset, error)
	GetUploadAssetIDByChecksum(ctx context.Context, ownerID string, checksum []byte) (string, error)
	GetByDeviceIDs(ctx context.Context, ownerID, deviceID string, deviceAssetIDs []string) ([]string, error)
	GetReferencedPaths(ctx context.Context, paths []string) ([]string, error)
	IsLivePhotoLinked(ctx context.Context, videoID string) (bool, error)
	UpsertExif(ctx context.Context, exif *domain.AssetExif) error
	UpsertSmartSearch(ctx context.Context, row *domain.SmartSearch) error
	StampMetadataExtracted(ctx context.Context, assetID string, at time.Time) error
	StampDuplicatesDetected(ctx context.Context, ids []string, at time.Time) error
	StreamDuplicateCandidates(ctx context.Context, force bool) iter.Seq2[string, error]
}

// UserRepository is the quota ledger.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	IncrementUsage(ctx context.Context, id string, delta int64) error
}

// DuplicateIndex finds near-duplicate assets and maintains cluster membership.
type DuplicateIndex interface {
	Search(ctx context.Context, s domain.DuplicateSearch) ([]domain.DuplicateHit, error)
	Merge(ctx context.Context, m domain.DuplicateMerge) error
	Remove(ctx context.Context, assetID string) error
	GetAll(ctx context.Context, ownerIDs []string) ([]domain.DuplicateGroup, error)
}

// ConfigProvider yields the current job-facing configuration.
type ConfigProvider interface {
	SystemConfig() config.SystemConfig
}

// StaticConfig serves a fixed snapshot.
type StaticConfig config.SystemConfig

func (c StaticConfig) SystemConfig() config.SystemConfig { return config.SystemConfig(c) }

// Auth identifies the caller of a user-facing operation.
type Auth struct {
	UserID string
}

var (
	_ AssetRepository = (*repository.AssetRepository)(nil)
	_ UserRepository  = (*repository.UserRepository)(nil)
	_ DuplicateIndex  = (*repository.DuplicateRepository)(nil)
	_ ConfigProvider  = (*config.Config)(nil)
)
