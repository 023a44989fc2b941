package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"golang.org/x/sync/errgroup"
)

// MemoryQueue runs jobs in-process. Each job name gets its own buffered
// channel and worker pool so a flood of one kind cannot starve the others.
type MemoryQueue struct {
	registry    *Registry
	concurrency int
	channels    map[domain.JobName]chan domain.Job

	done      chan struct{}
	closeOnce sync.Once
	pending   sync.WaitGroup
	group     *errgroup.Group
}

func NewMemoryQueue(registry *Registry, concurrency, bufferSize int) *MemoryQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	channels := make(map[domain.JobName]chan domain.Job, len(domain.AllJobNames))
	for _, name := range domain.AllJobNames {
		channels[name] = make(chan domain.Job, bufferSize)
	}
	return &MemoryQueue{
		registry:    registry,
		concurrency: concurrency,
		channels:    channels,
		done:        make(chan struct{}),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Close is called.
func (q *MemoryQueue) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	q.group = g
	for name, ch := range q.channels {
		for i := 0; i < q.concurrency; i++ {
			g.Go(func() error {
				q.work(gctx, name, ch)
				return nil
			})
		}
	}
	logger.CtxInfo(ctx, "[Queue] Memory workers started (%d per job)", q.concurrency)
}

func (q *MemoryQueue) work(ctx context.Context, name domain.JobName, ch <-chan domain.Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			for {
				select {
				case job := <-ch:
					q.run(ctx, name, job)
				default:
					return
				}
			}
		case job := <-ch:
			q.run(ctx, name, job)
		}
	}
}

func (q *MemoryQueue) run(ctx context.Context, name domain.JobName, job domain.Job) {
	defer q.pending.Done()
	status, err := Dispatch(ctx, q.registry, job)
	if err == nil && status == domain.JobStatusFailed {
		logger.CtxWarn(ctx, "[Queue] Job %s failed", name)
	}
}

func (q *MemoryQueue) Queue(ctx context.Context, job domain.Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	ch, ok := q.channels[job.Name]
	if !ok {
		return fmt.Errorf("unknown job %q", job.Name)
	}
	q.pending.Add(1)
	select {
	case ch <- job:
		return nil
	case <-q.done:
		q.pending.Done()
		return ErrClosed
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	}
}

func (q *MemoryQueue) QueueAll(ctx context.Context, jobs []domain.Job) error {
	for _, job := range jobs {
		if err := q.Queue(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Drain blocks until every queued job has been processed.
func (q *MemoryQueue) Drain() {
	q.pending.Wait()
}

// Close stops accepting jobs, lets the workers finish what is buffered and
// waits for them to exit.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	if q.group == nil {
		return nil
	}
	return q.group.Wait()
}
