package service

import (
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
	"github.com/timmy/photovault/internal/repository"
	"github.com/timmy/photovault/internal/storage"
	_ "golang.org/x/image/webp"
)

// MetadataService extracts file metadata after upload.
type MetadataService struct {
	assets AssetRepository
	store  storage.ContentStore
	jobs   queue.Queue
	logger *logger.Logger
	now    func() time.Time
}

func NewMetadataService(assets AssetRepository, store storage.ContentStore, jobs queue.Queue, log *logger.Logger) *MetadataService {
	return &MetadataService{assets: assets, store: store, jobs: jobs, logger: log, now: time.Now}
}

func (s *MetadataService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// HandleMetadataExtraction records size and pixel dimensions and hands the
// asset on to smart search. Running it twice for the same asset is harmless.
func (s *MetadataService) HandleMetadataExtraction(ctx context.Context, job domain.EntityJob) (domain.JobStatus, error) {
	ctx = logger.SetAssetID(ctx, job.ID)

	asset, err := s.assets.GetByID(ctx, job.ID, repository.AssetInclude{})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log(ctx).Warn("Asset not found")
			return domain.JobStatusFailed, nil
		}
		return domain.JobStatusFailed, err
	}

	info, err := s.store.Stat(ctx, asset.OriginalPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			s.log(ctx).WithField("path", asset.OriginalPath).Error("Original file is missing")
			return domain.JobStatusFailed, nil
		}
		return domain.JobStatusFailed, err
	}

	exif := &domain.AssetExif{AssetID: asset.ID, FileSizeInByte: info.Size}
	if asset.Type == domain.AssetTypeImage {
		width, height, err := s.imageSize(ctx, asset.OriginalPath)
		if err != nil {
			// Formats without a registered decoder (heic) keep zero dimensions.
			s.log(ctx).WithError(err).Debug("Could not read image dimensions")
		}
		exif.ExifImageWidth, exif.ExifImageHeight = width, height
	}

	if err := s.assets.UpsertExif(ctx, exif); err != nil {
		return domain.JobStatusFailed, err
	}
	if err := s.assets.StampMetadataExtracted(ctx, asset.ID, s.now()); err != nil {
		return domain.JobStatusFailed, err
	}

	if asset.IsTrashed() {
		return domain.JobStatusSuccess, nil
	}
	if err := s.jobs.Queue(ctx, domain.MustJob(domain.JobSmartSearch, domain.EntityJob{ID: asset.ID})); err != nil {
		return domain.JobStatusFailed, err
	}
	return domain.JobStatusSuccess, nil
}

func (s *MetadataService) imageSize(ctx context.Context, p string) (int, int, error) {
	rc, err := s.store.Open(ctx, p)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
