package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/repository"
)

// NotificationService forwards relayed domain events to the message bus, where
// mailers pick up confirmation and recover secrets.
type NotificationService struct {
	bus    MessageBus
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(bus MessageBus, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{bus: bus, logger: logger}
}

// RegisterHandlers subscribes the bus publisher to every domain event type.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil || n.bus == nil {
		return
	}
	for _, eventType := range domain.EventTypes() {
		dispatcher.Subscribe(eventType, n.publish)
	}
}

// publish is at-least-once: a redelivered batch publishes the same event id
// again and consumers deduplicate on it.
func (n *NotificationService) publish(ctx context.Context, _ repository.Repositories, event domain.Event) error {
	if err := n.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish to message bus: %w", err)
	}
	n.logger.Debug("event published",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", string(event.EventType())))
	return nil
}
