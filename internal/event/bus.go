package event

import (
	"context"
	"sync"

	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
)

// Emitter publishes domain events. Emit never blocks on subscribers.
type Emitter interface {
	Emit(ctx context.Context, name domain.EventName, payload any)
}

// Handler reacts to one event.
type Handler func(ctx context.Context, name domain.EventName, payload any) error

// Bus delivers events to handlers registered per event name. Handlers for
// one emission run in registration order on a background goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventName][]Handler
	wg       sync.WaitGroup
	closed   bool
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[domain.EventName][]Handler)}
}

// On registers h for every name given.
func (b *Bus) On(h Handler, names ...domain.EventName) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		b.handlers[name] = append(b.handlers[name], h)
	}
}

func (b *Bus) Emit(ctx context.Context, name domain.EventName, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		logger.CtxWarn(ctx, "[Event] Bus closed, dropping %s", name)
		return
	}
	handlers := b.handlers[name]
	if len(handlers) == 0 {
		b.mu.RUnlock()
		return
	}
	b.wg.Add(1)
	b.mu.RUnlock()

	// Detach from the request so handlers survive the response being written.
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer b.wg.Done()
		for _, h := range handlers {
			b.call(ctx, name, payload, h)
		}
	}()
}

func (b *Bus) call(ctx context.Context, name domain.EventName, payload any, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "[Event] Handler for %s panicked: %v", name, r)
		}
	}()
	if err := h(ctx, name, payload); err != nil {
		logger.CtxError(ctx, "[Event] Handler for %s failed: %v", name, err)
	}
}

// Close stops accepting events and waits for in-flight handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
