package domain

import (
	"encoding/json"
	"fmt"
)

// JobName identifies a kind of background job.
type JobName string

const (
	JobAssetExtractMetadata          JobName = "asset-extract-metadata"
	JobSmartSearch                   JobName = "smart-search"
	JobAssetDetectDuplicatesQueueAll JobName = "asset-detect-duplicates-queue-all"
	JobAssetDetectDuplicates         JobName = "asset-detect-duplicates"
	JobFileDelete                    JobName = "file-delete"
)

// AllJobNames lists every job the worker knows how to dispatch.
var AllJobNames = []JobName{
	JobAssetExtractMetadata,
	JobSmartSearch,
	JobAssetDetectDuplicatesQueueAll,
	JobAssetDetectDuplicates,
	JobFileDelete,
}

// JobStatus is the terminal outcome of a processed job.
// Values include JobStatusSuccess, JobStatusFailed and JobStatusSkipped.
type JobStatus string

const (
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
	JobStatusSkipped JobStatus = "skipped"
)

// JobSource tags why a metadata job was queued.
type JobSource string

const (
	JobSourceUpload JobSource = "upload"
	JobSourceCopy   JobSource = "copy"
)

// Job is a named unit of asynchronous work. Data holds the JSON-encoded payload.
type Job struct {
	Name JobName         `json:"name"`
	Data json.RawMessage `json:"data"`
}

// EntityJob is the payload for jobs that act on one asset.
type EntityJob struct {
	ID     string    `json:"id"`
	Source JobSource `json:"source,omitempty"`
}

// ForceJob is the payload for bulk drivers.
type ForceJob struct {
	Force bool `json:"force,omitempty"`
}

// FileDeleteJob is the payload for content cleanup.
type FileDeleteJob struct {
	Files []string `json:"files"`
}

// NewJob encodes payload into a Job with the given name.
func NewJob(name JobName, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return Job{Name: name, Data: data}, nil
}

// MustJob is NewJob for payloads that always encode (the structs declared in this file).
func MustJob(name JobName, payload any) Job {
	job, err := NewJob(name, payload)
	if err != nil {
		panic(err)
	}
	return job
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if len(j.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Name, err)
	}
	return nil
}
