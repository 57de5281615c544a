package outbox_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/outbox"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/repository/memory"
)

var now = time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)

func TestCodecDecodesByDiscriminator(t *testing.T) {
	codec := outbox.NewDomainCodec()
	account, err := domain.NewAccount(domain.RoleAdmin, "admin@example.com", "+15551234567", strings.Repeat("h", 60), "confirm", now)
	require.NoError(t, err)

	original := account.DomainEvents()[0]
	message, err := codec.Encode(original)
	require.NoError(t, err)
	assert.Equal(t, "account.created", message.Type)
	assert.Equal(t, original.EventID(), message.EventID)
	assert.Equal(t, now, message.OccurredOnUTC)

	decoded, err := codec.Decode(message)
	require.NoError(t, err)
	created, ok := decoded.(domain.AccountCreated)
	require.True(t, ok)
	assert.Equal(t, account.ID(), created.AccountID)
	assert.Equal(t, domain.RoleAdmin, created.Role)
	assert.Equal(t, "confirm", created.ConfirmationToken)
}

func TestCodecRejectsUnknownTypes(t *testing.T) {
	codec := outbox.NewDomainCodec()

	_, err := codec.Decode(repository.OutboxMessage{Type: "account.renamed", Content: []byte(`{}`)})
	assert.ErrorIs(t, err, outbox.ErrUnknownEventType)

	empty := outbox.NewCodec()
	_, err = empty.Encode(domain.AccountPasswordUpdated{AccountID: uuid.New()})
	assert.ErrorIs(t, err, outbox.ErrUnknownEventType)

	err = outbox.Register[domain.AccountPasswordUpdated](codec, domain.EventAccountPasswordUpdated)
	assert.ErrorIs(t, err, outbox.ErrDecoderExists)
}

func TestWriterStagesOnTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	writer := outbox.NewWriter(outbox.NewDomainCodec())

	account, err := domain.NewAccount(domain.RoleCustomer, "c@example.com", "+15551234567", strings.Repeat("h", 60), "confirm", now)
	require.NoError(t, err)
	require.NoError(t, account.SetPasswordHash(strings.Repeat("n", 60), now.Add(time.Second)))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, writer.PublishDomainEvents(ctx, tx.Repositories().Outbox, account))
	assert.Empty(t, account.DomainEvents())
	assert.Empty(t, store.OutboxMessages(), "nothing is visible before commit")

	require.NoError(t, tx.Commit(ctx))
	messages := store.OutboxMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, "account.created", messages[0].Type)
	assert.Equal(t, "account.password_updated", messages[1].Type)
	assert.Nil(t, messages[0].ProcessedOnUTC)
}
