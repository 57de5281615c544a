package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/repository/memory"
)

var now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func newAccount(t *testing.T, email string) *domain.Account {
	t.Helper()
	account, err := domain.NewAccount(domain.RoleCustomer, email, "+15551234567", strings.Repeat("h", 60), "secret", now)
	require.NoError(t, err)
	return account
}

func TestTxIsolationAndCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	account := newAccount(t, "a@example.com")
	require.NoError(t, tx.Repositories().Accounts.Add(ctx, account))

	_, err = tx.Repositories().Accounts.GetByID(ctx, account.ID())
	require.NoError(t, err, "reads see the transaction's own writes")

	_, err = store.Repositories().Accounts.GetByID(ctx, account.ID())
	assert.ErrorIs(t, err, repository.ErrNotFound, "uncommitted writes stay private")

	require.NoError(t, tx.Commit(ctx))
	got, err := store.Repositories().Accounts.GetByEmail(ctx, "A@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID(), got.ID())

	assert.ErrorIs(t, tx.Commit(ctx), memory.ErrTxClosed)
}

func TestRollbackDiscardsOutboxRows(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, tx.Repositories().Outbox.Add(ctx, repository.OutboxMessage{
			EventID:       uuid.New(),
			Type:          "account.created",
			Content:       []byte(`{}`),
			OccurredOnUTC: now,
		}))
	}
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))

	assert.Empty(t, store.OutboxMessages())
}

func TestConcurrentRotationLoses(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	accountID := uuid.New()

	original, err := domain.NewRefreshToken(accountID, now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Repositories().RefreshTokens.Add(ctx, original))

	first, err := store.Begin(ctx)
	require.NoError(t, err)
	second, err := store.Begin(ctx)
	require.NoError(t, err)

	rotate := func(tx repository.Tx) error {
		old, err := tx.Repositories().RefreshTokens.GetNotRevokedToken(ctx, original.ID())
		require.NoError(t, err)
		next, err := domain.NewRefreshToken(accountID, now, time.Hour)
		require.NoError(t, err)
		if err := tx.Repositories().RefreshTokens.AddTokenAndRevokeOldToken(ctx, next, old); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	require.NoError(t, rotate(first))
	assert.ErrorIs(t, rotate(second), repository.ErrAlreadyRevoked)

	live, err := store.Repositories().RefreshTokens.GetNotRevokedTokensByAccountID(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestFailCommits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	boom := errors.New("connection reset")
	store.FailCommits(boom)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	account := newAccount(t, "b@example.com")
	require.NoError(t, tx.Repositories().Accounts.Add(ctx, account))

	assert.ErrorIs(t, tx.Commit(ctx), boom)
	_, err = store.Repositories().Accounts.GetByID(ctx, account.ID())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, tx.Commit(ctx), memory.ErrTxClosed)
	assert.ErrorIs(t, tx.Repositories().Accounts.Add(ctx, newAccount(t, "c@example.com")), memory.ErrTxClosed)
	_, err = store.Repositories().Accounts.GetByID(ctx, account.ID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDuplicateEmailRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Repositories().Accounts.Add(ctx, newAccount(t, "dup@example.com")))
	assert.ErrorIs(t, store.Repositories().Accounts.Add(ctx, newAccount(t, "dup@example.com")), repository.ErrDuplicate)
}

func TestListUnprocessedOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	outbox := store.Repositories().Outbox

	late := repository.OutboxMessage{EventID: uuid.New(), Type: "t", Content: []byte(`{}`), OccurredOnUTC: now.Add(time.Minute)}
	early := repository.OutboxMessage{EventID: uuid.New(), Type: "t", Content: []byte(`{}`), OccurredOnUTC: now}
	done := repository.OutboxMessage{EventID: uuid.New(), Type: "t", Content: []byte(`{}`), OccurredOnUTC: now.Add(-time.Minute)}
	for _, m := range []repository.OutboxMessage{late, early, done} {
		require.NoError(t, outbox.Add(ctx, m))
	}
	require.NoError(t, outbox.MarkProcessed(ctx, done.EventID, now))
	assert.ErrorIs(t, outbox.MarkProcessed(ctx, done.EventID, now), repository.ErrNotFound)

	pending, err := outbox.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, early.EventID, pending[0].EventID)
	assert.Equal(t, late.EventID, pending[1].EventID)

	pending, err = outbox.ListUnprocessed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
