package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
)

type passwordRecoverTokenRepository struct {
	db Queryer
}

// NewPasswordRecoverTokenRepository returns a Postgres-backed implementation.
func NewPasswordRecoverTokenRepository(db Queryer) PasswordRecoverTokenRepository {
	return &passwordRecoverTokenRepository{db: db}
}

func (r *passwordRecoverTokenRepository) Add(ctx context.Context, token *domain.PasswordRecoverToken) error {
	const query = `
        INSERT INTO password_recover_token (id, account_id, recover_token_hash, is_already_applied, expires_at)
        VALUES ($1, $2, $3, $4, $5)`

	s := token.Snapshot()
	_, err := r.db.Exec(ctx, query, s.ID, s.AccountID, s.TokenHash, s.IsAlreadyApplied, s.ExpiresAt)
	return mapUniqueViolation(err)
}

func (r *passwordRecoverTokenRepository) Get(ctx context.Context, id, accountID uuid.UUID) (*domain.PasswordRecoverToken, error) {
	const query = `
        SELECT id, account_id, recover_token_hash, is_already_applied, expires_at
        FROM password_recover_token WHERE id=$1 AND account_id=$2`

	var s domain.PasswordRecoverTokenSnapshot
	if err := r.db.QueryRow(ctx, query, id, accountID).Scan(
		&s.ID,
		&s.AccountID,
		&s.TokenHash,
		&s.IsAlreadyApplied,
		&s.ExpiresAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return domain.RehydratePasswordRecoverToken(s)
}

func (r *passwordRecoverTokenRepository) UpdateAppliedStatus(ctx context.Context, token *domain.PasswordRecoverToken) error {
	const query = `
        UPDATE password_recover_token SET is_already_applied=$1
        WHERE id=$2 AND is_already_applied<>$1`

	cmd, err := r.db.Exec(ctx, query, token.IsAlreadyApplied(), token.ID())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
