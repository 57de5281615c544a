// Package uow is the transaction boundary every write path goes through.
package uow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/outbox"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/retry"
)

// ErrUnitOfWorkClosed is returned when a unit of work is reused after commit
// or rollback.
var ErrUnitOfWorkClosed = errors.New("unit of work already closed")

// TransactionFailedError reports a begin or commit that could not complete.
type TransactionFailedError struct {
	Op  string
	Err error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

// Transient reports whether the cause was a retryable infrastructure failure:
// a begin that exhausted the retry policy, or a commit that failed transiently.
func (e *TransactionFailedError) Transient() bool {
	return retry.IsTransient(e.Err)
}

// Factory opens units of work.
type Factory struct {
	db     repository.Transactor
	retry  *retry.Policy
	writer *outbox.Writer
	logger *zap.Logger
}

// NewFactory wires the transactor, retry policy and outbox writer.
func NewFactory(db repository.Transactor, policy *retry.Policy, writer *outbox.Writer, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = retry.NewPolicy(retry.Config{})
	}
	return &Factory{db: db, retry: policy, writer: writer, logger: logger}
}

// Reader serves reads outside any transaction.
func (f *Factory) Reader() repository.Repositories {
	return f.db.Repositories()
}

// Begin opens a transaction, retrying transient failures. Cancellation is
// honored only up to this point; afterwards the unit of work ignores it so the
// transaction always reaches commit or rollback.
func (f *Factory) Begin(ctx context.Context) (*UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tx repository.Tx
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		tx, err = f.db.Begin(ctx)
		return err
	})
	if err != nil {
		return nil, &TransactionFailedError{Op: "begin", Err: err}
	}

	return &UnitOfWork{
		tx:     tx,
		repos:  tx.Repositories(),
		writer: f.writer,
		logger: f.logger,
		ctx:    context.WithoutCancel(ctx),
	}, nil
}

// UnitOfWork is one transaction. It is single use and must not be shared
// between goroutines.
type UnitOfWork struct {
	tx     repository.Tx
	repos  repository.Repositories
	writer *outbox.Writer
	logger *zap.Logger
	ctx    context.Context
	closed bool
}

func (u *UnitOfWork) Accounts() repository.AccountRepository { return u.repos.Accounts }

func (u *UnitOfWork) RefreshTokens() repository.RefreshTokenRepository {
	return u.repos.RefreshTokens
}

func (u *UnitOfWork) ConfirmationTokens() repository.ConfirmationTokenRepository {
	return u.repos.ConfirmationTokens
}

func (u *UnitOfWork) RecoverTokens() repository.PasswordRecoverTokenRepository {
	return u.repos.RecoverTokens
}

func (u *UnitOfWork) Outbox() repository.OutboxRepository { return u.repos.Outbox }

// Repositories exposes the whole bundle, for dispatch handlers.
func (u *UnitOfWork) Repositories() repository.Repositories { return u.repos }

// Context is detached from the caller's cancellation and should be used for
// every statement inside the unit of work.
func (u *UnitOfWork) Context() context.Context { return u.ctx }

// PublishDomainEvents stages the aggregate's buffered events in this transaction.
func (u *UnitOfWork) PublishDomainEvents(source domain.EventSource) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	return u.writer.PublishDomainEvents(u.ctx, u.repos.Outbox, source)
}

// Commit commits exactly once. A failed commit ends the storage transaction,
// so there is no handle left to retry on. The failure is rolled back and
// returned as *TransactionFailedError carrying the original cause, so a
// transient cause is still reported as such.
func (u *UnitOfWork) Commit() error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	u.closed = true

	err := u.tx.Commit(u.ctx)
	if err == nil {
		return nil
	}

	if rbErr := u.tx.Rollback(u.ctx); rbErr != nil {
		u.logger.Error("rollback after failed commit", zap.Error(rbErr))
	}
	return &TransactionFailedError{Op: "commit", Err: err}
}

// Rollback is safe to defer; it does nothing once the unit of work is closed.
func (u *UnitOfWork) Rollback() {
	if u.closed {
		return
	}
	u.closed = true
	if err := u.tx.Rollback(u.ctx); err != nil {
		u.logger.Warn("rollback failed", zap.Error(err))
	}
}
