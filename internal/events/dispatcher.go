package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

// EventHandler handles one relayed event. repos are bound to the relay's
// transaction, so writes commit together with the processed mark. Handlers
// must be idempotent: a failed batch is dispatched again.
type EventHandler func(ctx context.Context, repos repository.Repositories, event domain.Event) error

// Dispatcher is the explicit dispatch table used by the outbox relay.
type Dispatcher interface {
	Dispatch(ctx context.Context, repos repository.Repositories, event domain.Event) error
	Subscribe(eventType domain.EventType, handler EventHandler)
}

type tableDispatcher struct {
	mu        sync.RWMutex
	listeners map[domain.EventType][]EventHandler
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher() Dispatcher {
	return &tableDispatcher{
		listeners: make(map[domain.EventType][]EventHandler),
	}
}

// Dispatch runs the handlers subscribed to the event type in registration
// order and stops at the first error. Events without subscribers succeed.
func (d *tableDispatcher) Dispatch(ctx context.Context, repos repository.Repositories, event domain.Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.EventType()]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, repos, event); err != nil {
			return fmt.Errorf("%s %s: %w", event.EventType(), event.EventID(), err)
		}
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *tableDispatcher) Subscribe(eventType domain.EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
