// Package events provides the in-process event bus that decouples the
// engine's state changes from their side effects (realtime broadcast,
// operator notifications, metrics).
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/updownhq/updown/internal/domain"
)

// Handler consumes a published event. Handlers run synchronously on the
// publisher's goroutine; a returned error is logged and never propagated
// back to the publisher.
type Handler func(ctx context.Context, e domain.Event) error

// Bus is a typed callback registry implementing domain.EventBus. Subscribing
// after publishing has started is safe.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]Handler
	all      []Handler
	logger   *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[domain.EventType][]Handler),
		logger:   logger.With(slog.String("component", "event_bus")),
	}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers h for every event type. Used by pass-through sinks
// such as the redis stream republisher.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers e to all matching handlers. Handler errors are logged and
// swallowed; the state change that produced the event has already committed
// and must not be affected by a failing consumer.
func (b *Bus) Publish(ctx context.Context, e domain.Event) {
	b.mu.RLock()
	matched := b.handlers[e.EventType()]
	handlers := make([]Handler, 0, len(matched)+len(b.all))
	handlers = append(handlers, matched...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			b.logger.WarnContext(ctx, "event handler failed",
				slog.String("event", string(e.EventType())),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Compile-time interface check.
var _ domain.EventBus = (*Bus)(nil)
