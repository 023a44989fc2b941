package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/event"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
	"github.com/timmy/photovault/internal/repository"
)

// queueAllBatchSize bounds how many detection jobs are held before QueueAll.
const queueAllBatchSize = 1000

// DuplicateService keeps duplicate clusters up to date as embeddings land.
type DuplicateService struct {
	assets  AssetRepository
	index   DuplicateIndex
	jobs    queue.Queue
	events  event.Emitter
	config  ConfigProvider
	logger  *logger.Logger
	now     func() time.Time
	newUUID func() string
}

func NewDuplicateService(
	assets AssetRepository,
	index DuplicateIndex,
	jobs queue.Queue,
	events event.Emitter,
	config ConfigProvider,
	log *logger.Logger,
) *DuplicateService {
	return &DuplicateService{
		assets:  assets,
		index:   index,
		jobs:    jobs,
		events:  events,
		config:  config,
		logger:  log,
		now:     time.Now,
		newUUID: uuid.NewString,
	}
}

func (s *DuplicateService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// GetDuplicates lists the caller's clusters that still have two or more members.
func (s *DuplicateService) GetDuplicates(ctx context.Context, auth Auth) ([]domain.DuplicateGroup, error) {
	return s.index.GetAll(ctx, []string{auth.UserID})
}

// HandleQueueSearchDuplicates queues one detection job per candidate asset.
// Candidates are streamed from the repository and queued in batches.
func (s *DuplicateService) HandleQueueSearchDuplicates(ctx context.Context, job domain.ForceJob) (domain.JobStatus, error) {
	if !s.config.SystemConfig().DuplicateDetectionEnabled() {
		return domain.JobStatusSkipped, nil
	}

	start := time.Now()
	total := 0
	batch := make([]domain.Job, 0, queueAllBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.jobs.QueueAll(ctx, batch); err != nil {
			return fmt.Errorf("failed to queue duplicate detection: %w", err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for id, err := range s.assets.StreamDuplicateCandidates(ctx, job.Force) {
		if err != nil {
			return domain.JobStatusFailed, err
		}
		batch = append(batch, domain.MustJob(domain.JobAssetDetectDuplicates, domain.EntityJob{ID: id}))
		if len(batch) >= queueAllBatchSize {
			if err := flush(); err != nil {
				return domain.JobStatusFailed, err
			}
		}
	}
	if err := flush(); err != nil {
		return domain.JobStatusFailed, err
	}

	logger.With(logger.Fields{"force": job.Force}).WithCount(total).WithDuration(start).
		Info(ctx, "[Duplicate] Queued duplicate detection")
	return domain.JobStatusSuccess, nil
}

// HandleSearchDuplicates evaluates one asset against its neighbours and
// merges or dissolves clusters accordingly.
func (s *DuplicateService) HandleSearchDuplicates(ctx context.Context, job domain.EntityJob) (domain.JobStatus, error) {
	ctx = logger.SetAssetID(ctx, job.ID)
	cfg := s.config.SystemConfig()
	if !cfg.DuplicateDetectionEnabled() {
		return domain.JobStatusSkipped, nil
	}

	asset, err := s.assets.GetByID(ctx, job.ID, repository.AssetInclude{SmartSearch: true})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log(ctx).Error("Asset not found")
			return domain.JobStatusFailed, nil
		}
		return domain.JobStatusFailed, err
	}

	if asset.StackID != nil {
		s.log(ctx).Debug("Asset is part of a stack, skipping")
		return domain.JobStatusSkipped, nil
	}
	if !asset.IsTimelineVisible() {
		s.log(ctx).Debug("Asset is not visible, skipping")
		return domain.JobStatusSkipped, nil
	}

	embedding := asset.Embedding()
	if len(embedding) == 0 {
		s.log(ctx).Error("Asset is missing embedding")
		return domain.JobStatusFailed, nil
	}

	hits, err := s.index.Search(ctx, domain.DuplicateSearch{
		AssetID:     asset.ID,
		Embedding:   embedding,
		MaxDistance: cfg.MachineLearning.DuplicateDetection.MaxDistance,
		Type:        asset.Type,
		OwnerIDs:    []string{asset.OwnerID},
	})
	if err != nil {
		return domain.JobStatusFailed, err
	}
	repository.SortHits(hits)

	touched, err := s.updateDuplicates(ctx, asset, hits)
	if err != nil {
		return domain.JobStatusFailed, err
	}

	if err := s.assets.StampDuplicatesDetected(ctx, touched, s.now()); err != nil {
		return domain.JobStatusFailed, err
	}
	return domain.JobStatusSuccess, nil
}

// updateDuplicates applies the merge or dissolve decision and returns the
// ids of every asset the decision considered.
func (s *DuplicateService) updateDuplicates(ctx context.Context, asset *domain.Asset, hits []domain.DuplicateHit) ([]string, error) {
	if len(hits) == 0 {
		if asset.DuplicateID != nil {
			s.log(ctx).WithField(logger.FieldDuplicateID, *asset.DuplicateID).Debug("No duplicates left, leaving cluster")
			if err := s.index.Remove(ctx, asset.ID); err != nil {
				return nil, err
			}
		}
		return []string{asset.ID}, nil
	}

	merge := PlanMerge(asset, hits, s.newUUID)
	touched := make([]string, 0, len(hits)+1)
	touched = append(touched, asset.ID)
	for _, hit := range hits {
		touched = append(touched, hit.AssetID)
	}

	if len(merge.AssetIDs) == 0 && len(merge.SourceIDs) == 0 {
		return touched, nil
	}
	if err := s.index.Merge(ctx, merge); err != nil {
		return nil, err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldDuplicateID: merge.TargetID,
		"merged":                len(merge.AssetIDs),
		"folded":                len(merge.SourceIDs),
	}).Info("Updated duplicate cluster")
	s.events.Emit(ctx, domain.EventDuplicateMerge, domain.DuplicateMergeEvent{
		TargetID:  merge.TargetID,
		AssetIDs:  merge.AssetIDs,
		SourceIDs: merge.SourceIDs,
	})
	return touched, nil
}

// PlanMerge decides which cluster asset and its hits end up in.
//
// The target is the asset's own duplicate id when it has one, otherwise the
// duplicate id of the first hit carrying one. Hits must be ordered by
// (distance, asset id) so the choice does not depend on index internals.
// When nothing carries an id a fresh one is taken from newID. Every other
// duplicate id seen among the hits is folded into the target.
func PlanMerge(asset *domain.Asset, hits []domain.DuplicateHit, newID func() string) domain.DuplicateMerge {
	var target string
	if asset.DuplicateID != nil {
		target = *asset.DuplicateID
	} else {
		for _, hit := range hits {
			if hit.DuplicateID != nil {
				target = *hit.DuplicateID
				break
			}
		}
	}
	if target == "" {
		target = newID()
	}

	merge := domain.DuplicateMerge{TargetID: target, AssetIDs: []string{}, SourceIDs: []string{}}
	if asset.DuplicateID == nil || *asset.DuplicateID != target {
		merge.AssetIDs = append(merge.AssetIDs, asset.ID)
	}

	seenSources := make(map[string]struct{})
	for _, hit := range hits {
		if hit.DuplicateID != nil && *hit.DuplicateID == target {
			continue
		}
		merge.AssetIDs = append(merge.AssetIDs, hit.AssetID)
		if hit.DuplicateID == nil {
			continue
		}
		if _, ok := seenSources[*hit.DuplicateID]; !ok {
			seenSources[*hit.DuplicateID] = struct{}{}
			merge.SourceIDs = append(merge.SourceIDs, *hit.DuplicateID)
		}
	}
	return merge
}
