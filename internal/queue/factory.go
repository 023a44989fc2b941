package queue

import (
	"context"
	"fmt"

	"github.com/timmy/photovault/internal/config"
)

// Backend is a queue this process can also consume from.
type Backend interface {
	Queue
	// Run processes jobs until ctx is cancelled.
	Run(ctx context.Context) error
	Close() error
}

// New builds the backend selected by cfg.Driver. Handlers may be added to
// registry after New returns and before Run is called.
func New(cfg config.QueueConfig, registry *Registry) (Backend, error) {
	switch cfg.Driver {
	case "", "memory":
		return &memoryBackend{MemoryQueue: NewMemoryQueue(registry, cfg.Concurrency, cfg.BufferSize)}, nil
	case "rabbitmq":
		q, err := NewRabbitMQQueue(cfg.URL, cfg.Exchange, cfg.Prefetch)
		if err != nil {
			return nil, err
		}
		return &rabbitBackend{RabbitMQQueue: q, registry: registry, concurrency: cfg.Concurrency}, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

type memoryBackend struct {
	*MemoryQueue
}

func (b *memoryBackend) Run(ctx context.Context) error {
	b.Start(ctx)
	<-ctx.Done()
	return nil
}

type rabbitBackend struct {
	*RabbitMQQueue
	registry    *Registry
	concurrency int
}

func (b *rabbitBackend) Run(ctx context.Context) error {
	return b.Consume(ctx, b.registry, b.concurrency)
}
