package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/identity-service/internal/domain"
)

var (
	// ErrNotFound is returned when a looked up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("record already exists")
	// ErrAlreadyRevoked is returned by a guarded revoke that lost a race.
	ErrAlreadyRevoked = errors.New("refresh token already revoked")
)

// AccountRepository persists Account aggregates.
type AccountRepository interface {
	Add(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdateStatus(ctx context.Context, account *domain.Account) error
	UpdatePasswordHash(ctx context.Context, account *domain.Account) error
}

// RefreshTokenRepository persists issued refresh tokens.
type RefreshTokenRepository interface {
	Add(ctx context.Context, token *domain.RefreshToken) error
	GetNotRevokedToken(ctx context.Context, id uuid.UUID) (*domain.RefreshToken, error)
	GetNotRevokedTokensByAccountID(ctx context.Context, accountID uuid.UUID) ([]*domain.RefreshToken, error)
	// AddTokenAndRevokeOldToken revokes oldToken only if it is still live and
	// inserts newToken. ErrAlreadyRevoked means another rotation won.
	AddTokenAndRevokeOldToken(ctx context.Context, newToken, oldToken *domain.RefreshToken) error
	UpdateRevokeStatus(ctx context.Context, token *domain.RefreshToken) error
}

// ConfirmationTokenRepository persists pending confirmation secrets, one per account.
type ConfirmationTokenRepository interface {
	Add(ctx context.Context, token *domain.ConfirmationToken) error
	Get(ctx context.Context, accountID uuid.UUID) (*domain.ConfirmationToken, error)
	Delete(ctx context.Context, accountID uuid.UUID) error
}

// PasswordRecoverTokenRepository persists password recover grants.
type PasswordRecoverTokenRepository interface {
	Add(ctx context.Context, token *domain.PasswordRecoverToken) error
	Get(ctx context.Context, id, accountID uuid.UUID) (*domain.PasswordRecoverToken, error)
	// UpdateAppliedStatus is guarded: ErrNotFound means the stored flag
	// already has the requested value.
	UpdateAppliedStatus(ctx context.Context, token *domain.PasswordRecoverToken) error
}

// OutboxMessage is one staged domain event.
type OutboxMessage struct {
	EventID        uuid.UUID
	Type           string
	Content        []byte
	OccurredOnUTC  time.Time
	ProcessedOnUTC *time.Time
}

// OutboxRepository stages and drains domain events.
type OutboxRepository interface {
	Add(ctx context.Context, message OutboxMessage) error
	// ListUnprocessed returns up to limit unprocessed rows, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID, processedAt time.Time) error
}

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Accounts           AccountRepository
	RefreshTokens      RefreshTokenRepository
	ConfirmationTokens ConfirmationTokenRepository
	RecoverTokens      PasswordRecoverTokenRepository
	Outbox             OutboxRepository
}

// Tx is an open storage transaction. Commit ends it whatever the outcome, as
// pgx does: a failed commit cannot be retried on the same Tx.
type Tx interface {
	Repositories() Repositories
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactor opens transactions and serves non-transactional reads.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
	Repositories() Repositories
}

// Queryer is satisfied by *pgxpool.Pool and pgx.Tx alike.
type Queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepositories binds the Postgres repositories to db.
func NewRepositories(db Queryer) Repositories {
	return Repositories{
		Accounts:           NewAccountRepository(db),
		RefreshTokens:      NewRefreshTokenRepository(db),
		ConfirmationTokens: NewConfirmationTokenRepository(db),
		RecoverTokens:      NewPasswordRecoverTokenRepository(db),
		Outbox:             NewOutboxRepository(db),
	}
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
