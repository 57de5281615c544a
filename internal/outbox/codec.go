// Package outbox stages domain events on the caller's transaction and
// decodes them back for the relay.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

var (
	ErrUnknownEventType = errors.New("outbox: unknown event type")
	ErrDecoderExists    = errors.New("outbox: decoder already registered")
)

// DecodeFunc turns stored content into a concrete event.
type DecodeFunc func(content []byte) (domain.Event, error)

// Codec maps event type discriminators to decoders.
type Codec struct {
	mu       sync.RWMutex
	decoders map[domain.EventType]DecodeFunc
}

// NewCodec returns an empty codec.
func NewCodec() *Codec {
	return &Codec{decoders: map[domain.EventType]DecodeFunc{}}
}

// NewDomainCodec knows every event raised by the domain package.
func NewDomainCodec() *Codec {
	codec := NewCodec()
	must(Register[domain.AccountCreated](codec, domain.EventAccountCreated))
	must(Register[domain.AccountPasswordUpdated](codec, domain.EventAccountPasswordUpdated))
	must(Register[domain.PasswordRecoverTokenCreated](codec, domain.EventPasswordRecoverTokenCreated))
	return codec
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Register adds a JSON decoder producing T for eventType.
func Register[T domain.Event](c *Codec, eventType domain.EventType) error {
	return c.RegisterFunc(eventType, func(content []byte) (domain.Event, error) {
		var event T
		if err := json.Unmarshal(content, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return event, nil
	})
}

// RegisterFunc adds a custom decoder.
func (c *Codec) RegisterFunc(eventType domain.EventType, fn DecodeFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.decoders[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrDecoderExists, eventType)
	}
	c.decoders[eventType] = fn
	return nil
}

// Encode serializes event under its discriminator.
func (c *Codec) Encode(event domain.Event) (repository.OutboxMessage, error) {
	eventType := event.EventType()

	c.mu.RLock()
	_, known := c.decoders[eventType]
	c.mu.RUnlock()
	if !known {
		return repository.OutboxMessage{}, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	content, err := json.Marshal(event)
	if err != nil {
		return repository.OutboxMessage{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return repository.OutboxMessage{
		EventID:       event.EventID(),
		Type:          string(eventType),
		Content:       content,
		OccurredOnUTC: event.OccurredOn().UTC(),
	}, nil
}

// Decode resolves the stored discriminator and decodes the content.
func (c *Codec) Decode(message repository.OutboxMessage) (domain.Event, error) {
	c.mu.RLock()
	decode, ok := c.decoders[domain.EventType(message.Type)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, message.Type)
	}
	return decode(message.Content)
}
