package events

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(ctx context.Context, event Event)

// Bus is a typed in-process event bus. Every published event is logged;
// subscribers receive events of the type they registered for.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(eventType string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], fn)
}

// Publish delivers the event to its type's subscribers and logs it.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	if b.logger != nil {
		b.logger.InfoContext(ctx, event.EventType(), slog.Any("event", event))
	}

	b.mu.RLock()
	handlers := b.handlers[event.EventType()]
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ctx, event)
	}
}
