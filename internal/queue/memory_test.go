package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/timmy/photovault/internal/domain"
)

func TestRegistry_Register(t *testing.T) {
	noop := func(context.Context, domain.Job) (domain.JobStatus, error) { return domain.JobStatusSuccess, nil }

	tests := []struct {
		name    string
		job     domain.JobName
		handler Handler
		wantErr bool
	}{
		{name: "ok", job: domain.JobFileDelete, handler: noop},
		{name: "nil handler", job: domain.JobSmartSearch, handler: nil, wantErr: true},
		{name: "empty name", job: "", handler: noop, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.job, tt.handler)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	r := NewRegistry()
	if err := r.Register(domain.JobFileDelete, noop); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(domain.JobFileDelete, noop); err == nil {
		t.Error("expected error registering the same job twice")
	}
}

func TestRegistry_NamesFollowDeclarationOrder(t *testing.T) {
	noop := func(context.Context, domain.Job) (domain.JobStatus, error) { return domain.JobStatusSuccess, nil }
	r := NewRegistry()
	_ = r.Register(domain.JobFileDelete, noop)
	_ = r.Register(domain.JobAssetExtractMetadata, noop)

	got := r.Names()
	if len(got) != 2 || got[0] != domain.JobAssetExtractMetadata || got[1] != domain.JobFileDelete {
		t.Errorf("Names() = %v", got)
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		handler    Handler
		wantStatus domain.JobStatus
		wantErr    bool
	}{
		{
			name:       "success",
			handler:    func(context.Context, domain.Job) (domain.JobStatus, error) { return domain.JobStatusSuccess, nil },
			wantStatus: domain.JobStatusSuccess,
		},
		{
			name:       "skipped",
			handler:    func(context.Context, domain.Job) (domain.JobStatus, error) { return domain.JobStatusSkipped, nil },
			wantStatus: domain.JobStatusSkipped,
		},
		{
			name: "error",
			handler: func(context.Context, domain.Job) (domain.JobStatus, error) {
				return domain.JobStatusFailed, errors.New("boom")
			},
			wantStatus: domain.JobStatusFailed,
			wantErr:    true,
		},
		{
			name:       "panic",
			handler:    func(context.Context, domain.Job) (domain.JobStatus, error) { panic("kaboom") },
			wantStatus: domain.JobStatusFailed,
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if err := r.Register(domain.JobSmartSearch, tt.handler); err != nil {
				t.Fatal(err)
			}
			status, err := Dispatch(context.Background(), r, domain.Job{Name: domain.JobSmartSearch})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if status != tt.wantStatus {
				t.Errorf("Dispatch() status = %s, want %s", status, tt.wantStatus)
			}
		})
	}
}

func TestDispatch_MissingHandlerFails(t *testing.T) {
	status, err := Dispatch(context.Background(), NewRegistry(), domain.Job{Name: domain.JobFileDelete})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.JobStatusFailed {
		t.Errorf("status = %s, want failed", status)
	}
}

func TestMemoryQueue_ProcessesJobs(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	r := NewRegistry()
	_ = r.Register(domain.JobAssetDetectDuplicates, func(_ context.Context, job domain.Job) (domain.JobStatus, error) {
		var payload domain.EntityJob
		if err := job.Decode(&payload); err != nil {
			return domain.JobStatusFailed, err
		}
		mu.Lock()
		ids = append(ids, payload.ID)
		mu.Unlock()
		return domain.JobStatusSuccess, nil
	})

	q := NewMemoryQueue(r, 2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	jobs := []domain.Job{
		domain.MustJob(domain.JobAssetDetectDuplicates, domain.EntityJob{ID: "a"}),
		domain.MustJob(domain.JobAssetDetectDuplicates, domain.EntityJob{ID: "b"}),
		domain.MustJob(domain.JobAssetDetectDuplicates, domain.EntityJob{ID: "c"}),
	}
	if err := q.QueueAll(ctx, jobs); err != nil {
		t.Fatalf("QueueAll() error = %v", err)
	}
	q.Drain()

	mu.Lock()
	got := append([]string(nil), ids...)
	mu.Unlock()
	sort.Strings(got)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("processed = %v", got)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Queue(ctx, jobs[0]); !errors.Is(err, ErrClosed) {
		t.Errorf("Queue() after Close error = %v, want ErrClosed", err)
	}
}

func TestMemoryQueue_RejectsUnknownJob(t *testing.T) {
	q := NewMemoryQueue(NewRegistry(), 1, 1)
	if err := q.Queue(context.Background(), domain.Job{Name: "nope"}); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestQueueName(t *testing.T) {
	if got := QueueName("photovault.jobs", domain.JobFileDelete); got != "photovault.jobs.file-delete" {
		t.Errorf("QueueName() = %q", got)
	}
}
