package service

import (
	"context"
	"slices"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/storage"
)

// CleanupService removes content that no asset references.
type CleanupService struct {
	assets AssetRepository
	store  storage.ContentStore
}

func NewCleanupService(assets AssetRepository, store storage.ContentStore) *CleanupService {
	return &CleanupService{assets: assets, store: store}
}

// HandleFileDelete deletes job.Files. Paths that an asset record points at
// are kept: content addressing means a concurrent upload of the same bytes
// may own them by now.
func (s *CleanupService) HandleFileDelete(ctx context.Context, job domain.FileDeleteJob) (domain.JobStatus, error) {
	if len(job.Files) == 0 {
		return domain.JobStatusSkipped, nil
	}

	referenced, err := s.assets.GetReferencedPaths(ctx, job.Files)
	if err != nil {
		return domain.JobStatusFailed, err
	}
	orphans := make([]string, 0, len(job.Files))
	for _, p := range job.Files {
		if !slices.Contains(referenced, p) {
			orphans = append(orphans, p)
		}
	}
	if len(orphans) == 0 {
		return domain.JobStatusSkipped, nil
	}

	if err := s.store.Delete(ctx, orphans...); err != nil {
		return domain.JobStatusFailed, err
	}
	logger.With(nil).WithCount(len(orphans)).Info(ctx, "[Cleanup] Deleted orphaned files")
	return domain.JobStatusSuccess, nil
}
