package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/outbox"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	confirming bool
	confirms   chan amqp.Confirmation
	published  []published
	nack       bool
	silent     bool
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+"|"+kind)
	if !durable {
		return errors.New("exchange must be durable")
	}
	return nil
}

func (f *fakeChannel) Confirm(bool) error {
	f.confirming = true
	return nil
}

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = confirm
	return confirm
}

func (f *fakeChannel) GetNextPublishSeqNo() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.published)) + 1
}

func (f *fakeChannel) confirm(tag uint64, ack bool) {
	f.confirms <- amqp.Confirmation{DeliveryTag: tag, Ack: ack}
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	if !f.silent {
		f.confirms <- amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: !f.nack}
	}
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestEvent(t *testing.T) domain.Event {
	t.Helper()
	account, err := domain.NewAccount(domain.RoleCustomer, "a@b.io", "+15551234567",
		strings.Repeat("h", domain.PasswordHashLength), "confirm-me", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return account.DomainEvents()[0]
}

func TestPublishSendsPersistentMessageRoutedByType(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := NewRabbitPublisher(ch, "identity.events", outbox.NewDomainCodec(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"identity.events|topic"}, ch.declared)
	assert.True(t, ch.confirming)

	event := newTestEvent(t)
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "identity.events", got.exchange)
	assert.Equal(t, "account.created", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, event.EventID().String(), got.msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "confirm-me", body["confirmation_token"])
}

func TestPublishReportsNack(t *testing.T) {
	ch := &fakeChannel{nack: true}
	pub, err := NewRabbitPublisher(ch, "x", outbox.NewDomainCodec(), nil)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), newTestEvent(t))
	assert.ErrorIs(t, err, ErrPublishNacked)
}

func TestPublishTimesOutWithoutConfirm(t *testing.T) {
	ch := &fakeChannel{silent: true}
	pub, err := NewRabbitPublisher(ch, "x", outbox.NewDomainCodec(), nil)
	require.NoError(t, err)
	pub.confirmTimeout = 10 * time.Millisecond

	err = pub.Publish(context.Background(), newTestEvent(t))
	assert.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestLateConfirmIsNotTakenForTheNextPublish(t *testing.T) {
	ch := &fakeChannel{silent: true}
	pub, err := NewRabbitPublisher(ch, "x", outbox.NewDomainCodec(), nil)
	require.NoError(t, err)
	pub.confirmTimeout = 20 * time.Millisecond

	require.ErrorIs(t, pub.Publish(context.Background(), newTestEvent(t)), ErrConfirmTimeout)

	ch.confirm(1, true)
	assert.ErrorIs(t, pub.Publish(context.Background(), newTestEvent(t)), ErrConfirmTimeout)

	go func() {
		time.Sleep(5 * time.Millisecond)
		ch.confirm(3, false)
	}()
	assert.ErrorIs(t, pub.Publish(context.Background(), newTestEvent(t)), ErrPublishNacked)

	go func() {
		time.Sleep(5 * time.Millisecond)
		ch.confirm(4, true)
	}()
	assert.NoError(t, pub.Publish(context.Background(), newTestEvent(t)))
}

func TestLateConfirmAfterCancellationIsDropped(t *testing.T) {
	ch := &fakeChannel{silent: true}
	pub, err := NewRabbitPublisher(ch, "x", outbox.NewDomainCodec(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pub.Publish(ctx, newTestEvent(t)), context.Canceled)

	ch.confirm(1, true)
	pub.confirmTimeout = 20 * time.Millisecond
	assert.ErrorIs(t, pub.Publish(context.Background(), newTestEvent(t)), ErrConfirmTimeout)
}

func TestPublishAfterClose(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := NewRabbitPublisher(ch, "x", outbox.NewDomainCodec(), nil)
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
	assert.ErrorIs(t, pub.Publish(context.Background(), newTestEvent(t)), ErrPublisherClosed)
}

func TestLogPublisherNeverFails(t *testing.T) {
	assert.NoError(t, NewLogPublisher(zap.NewNop()).Publish(context.Background(), newTestEvent(t)))
}
