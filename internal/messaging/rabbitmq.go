// Package messaging adapts the message bus port to RabbitMQ.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/outbox"
)

const (
	defaultConfirmTimeout = 5 * time.Second
	confirmBuffer         = 16
)

var (
	// ErrPublishNacked means the broker refused the message.
	ErrPublishNacked = errors.New("broker nacked publish")
	// ErrConfirmTimeout means no confirmation arrived in time.
	ErrConfirmTimeout = errors.New("timed out waiting for publish confirmation")
	// ErrConfirmOutOfOrder means the broker confirmed a tag past the one awaited.
	ErrConfirmOutOfOrder = errors.New("publish confirmation out of order")
	// ErrPublisherClosed is returned after Close or when the channel dies.
	ErrPublisherClosed = errors.New("publisher closed")
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	GetNextPublishSeqNo() uint64
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes domain events to a durable topic exchange with
// the event type as routing key and waits for the broker's confirmation.
type RabbitPublisher struct {
	mu             sync.Mutex
	conn           *amqp.Connection
	ch             Channel
	confirms       chan amqp.Confirmation
	exchange       string
	codec          *outbox.Codec
	confirmTimeout time.Duration
	logger         *zap.Logger
	closed         bool
}

// Dial connects to url and opens a confirming publisher on exchange.
func Dial(url, exchange string, codec *outbox.Codec, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open broker channel: %w", err)
	}

	pub, err := NewRabbitPublisher(ch, exchange, codec, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	pub.conn = conn
	return pub, nil
}

// NewRabbitPublisher declares the exchange and enables confirms on ch.
func NewRabbitPublisher(ch Channel, exchange string, codec *outbox.Codec, logger *zap.Logger) (*RabbitPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &RabbitPublisher{
		ch:             ch,
		confirms:       ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer)),
		exchange:       exchange,
		codec:          codec,
		confirmTimeout: defaultConfirmTimeout,
		logger:         logger,
	}, nil
}

// Publish sends event as a persistent JSON message. The message id is the
// event id so consumers can drop redeliveries.
func (p *RabbitPublisher) Publish(ctx context.Context, event domain.Event) error {
	encoded, err := p.codec.Encode(event)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    encoded.EventID.String(),
		Type:         encoded.Type,
		Timestamp:    encoded.OccurredOnUTC,
		Body:         encoded.Content,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}

	tag := p.ch.GetNextPublishSeqNo()
	if err := p.ch.PublishWithContext(ctx, p.exchange, encoded.Type, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", encoded.Type, err)
	}
	return p.waitForConfirm(ctx, tag)
}

// waitForConfirm waits for the confirmation of delivery tag. Confirmations of
// earlier tags arrive late after a timeout or cancellation; they are dropped
// so they can never be mistaken for this publish's ack.
func (p *RabbitPublisher) waitForConfirm(ctx context.Context, tag uint64) error {
	timeout := time.NewTimer(p.confirmTimeout)
	defer timeout.Stop()

	for {
		select {
		case confirmed, ok := <-p.confirms:
			if !ok {
				p.closed = true
				return ErrPublisherClosed
			}
			if confirmed.DeliveryTag < tag {
				p.logger.Warn("dropping late publish confirmation",
					zap.Uint64("delivery_tag", confirmed.DeliveryTag),
					zap.Bool("ack", confirmed.Ack))
				continue
			}
			if confirmed.DeliveryTag > tag {
				return fmt.Errorf("%w: expected delivery_tag=%d, got %d", ErrConfirmOutOfOrder, tag, confirmed.DeliveryTag)
			}
			if !confirmed.Ack {
				return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
			}
			return nil
		case <-timeout.C:
			return ErrConfirmTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the channel and, when dialed, the connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}

// LogPublisher stands in for the broker in development: it logs every event
// and never fails.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	p.logger.Info("event",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", string(event.EventType())),
		zap.Time("occurred_on", event.OccurredOn()),
		zap.Any("payload", event))
	return nil
}
