package service

import (
	"context"
	"errors"
	"path"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
	"github.com/timmy/photovault/internal/repository"
	"github.com/timmy/photovault/internal/storage"
)

// SmartSearchService computes CLIP embeddings and feeds the vector index.
type SmartSearchService struct {
	assets  AssetRepository
	vectors repository.VectorIndex
	store   storage.ContentStore
	encoder Encoder
	jobs    queue.Queue
	config  ConfigProvider
	logger  *logger.Logger
}

func NewSmartSearchService(
	assets AssetRepository,
	vectors repository.VectorIndex,
	store storage.ContentStore,
	encoder Encoder,
	jobs queue.Queue,
	config ConfigProvider,
	log *logger.Logger,
) *SmartSearchService {
	return &SmartSearchService{
		assets:  assets,
		vectors: vectors,
		store:   store,
		encoder: encoder,
		jobs:    jobs,
		config:  config,
		logger:  log,
	}
}

func (s *SmartSearchService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// HandleEncodeClip embeds one image and queues duplicate detection for it.
func (s *SmartSearchService) HandleEncodeClip(ctx context.Context, job domain.EntityJob) (domain.JobStatus, error) {
	ctx = logger.SetAssetID(ctx, job.ID)
	cfg := s.config.SystemConfig()
	if !cfg.MachineLearning.Enabled {
		return domain.JobStatusSkipped, nil
	}

	asset, err := s.assets.GetByID(ctx, job.ID, repository.AssetInclude{})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log(ctx).Warn("Asset not found")
			return domain.JobStatusFailed, nil
		}
		return domain.JobStatusFailed, err
	}
	// Videos would need a preview frame, which is not generated here.
	if asset.Type != domain.AssetTypeImage || asset.IsTrashed() {
		return domain.JobStatusSkipped, nil
	}

	rc, err := s.store.Open(ctx, asset.OriginalPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			s.log(ctx).WithField("path", asset.OriginalPath).Error("Original file is missing")
			return domain.JobStatusFailed, nil
		}
		return domain.JobStatusFailed, err
	}
	model := cfg.MachineLearning.Clip.ModelName
	embedding, err := s.encoder.EncodeImage(ctx, model, path.Base(asset.OriginalPath), rc)
	rc.Close()
	if err != nil {
		return domain.JobStatusFailed, err
	}

	if err := s.assets.UpsertSmartSearch(ctx, &domain.SmartSearch{
		AssetID:   asset.ID,
		Embedding: pgvector.NewVector(embedding),
		Model:     model,
	}); err != nil {
		return domain.JobStatusFailed, err
	}
	if err := s.vectors.Upsert(ctx, asset, embedding); err != nil {
		return domain.JobStatusFailed, err
	}

	if cfg.DuplicateDetectionEnabled() {
		if err := s.jobs.Queue(ctx, domain.MustJob(domain.JobAssetDetectDuplicates, domain.EntityJob{ID: asset.ID})); err != nil {
			return domain.JobStatusFailed, err
		}
	}
	return domain.JobStatusSuccess, nil
}
