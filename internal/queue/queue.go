package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timmy/photovault/internal/domain"
)

// ErrClosed is returned when a job is queued after the queue shut down.
var ErrClosed = errors.New("queue closed")

// Queue accepts jobs for asynchronous processing.
type Queue interface {
	Queue(ctx context.Context, job domain.Job) error
	QueueAll(ctx context.Context, jobs []domain.Job) error
}

// Handler processes one job and reports its terminal status.
// A returned error means the job may be retried.
type Handler func(ctx context.Context, job domain.Job) (domain.JobStatus, error)

// Registry maps job names to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.JobName]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.JobName]Handler)}
}

func (r *Registry) Register(name domain.JobName, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for %s", name)
	}
	if name == "" {
		return fmt.Errorf("empty job name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler already registered for job %s", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) Get(name domain.JobName) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered job names in AllJobNames order.
func (r *Registry) Names() []domain.JobName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]domain.JobName, 0, len(r.handlers))
	for _, name := range domain.AllJobNames {
		if _, ok := r.handlers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func isKnown(name domain.JobName) bool {
	for _, n := range domain.AllJobNames {
		if n == name {
			return true
		}
	}
	return false
}
