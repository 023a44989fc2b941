package service

import (
	"context"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
)

// JobHandlers bundles the services that process background jobs.
type JobHandlers struct {
	Metadata    *MetadataService
	SmartSearch *SmartSearchService
	Duplicates  *DuplicateService
	Cleanup     *CleanupService
}

// Register adds one handler per job name to registry.
func (h *JobHandlers) Register(registry *queue.Registry) error {
	table := []struct {
		name    domain.JobName
		handler queue.Handler
	}{
		{domain.JobAssetExtractMetadata, payloadHandler(h.Metadata.HandleMetadataExtraction)},
		{domain.JobSmartSearch, payloadHandler(h.SmartSearch.HandleEncodeClip)},
		{domain.JobAssetDetectDuplicatesQueueAll, payloadHandler(h.Duplicates.HandleQueueSearchDuplicates)},
		{domain.JobAssetDetectDuplicates, payloadHandler(h.Duplicates.HandleSearchDuplicates)},
		{domain.JobFileDelete, payloadHandler(h.Cleanup.HandleFileDelete)},
	}
	for _, entry := range table {
		if err := registry.Register(entry.name, entry.handler); err != nil {
			return err
		}
	}
	return nil
}

// payloadHandler decodes the job payload into T. Undecodable payloads fail
// without an error so they are not redelivered.
func payloadHandler[T any](fn func(context.Context, T) (domain.JobStatus, error)) queue.Handler {
	return func(ctx context.Context, job domain.Job) (domain.JobStatus, error) {
		var payload T
		if err := job.Decode(&payload); err != nil {
			logger.CtxError(ctx, "[Jobs] %v", err)
			return domain.JobStatusFailed, nil
		}
		return fn(ctx, payload)
	}
}
