package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
)

type confirmationTokenRepository struct {
	db Queryer
}

// NewConfirmationTokenRepository returns a Postgres-backed implementation.
func NewConfirmationTokenRepository(db Queryer) ConfirmationTokenRepository {
	return &confirmationTokenRepository{db: db}
}

func (r *confirmationTokenRepository) Add(ctx context.Context, token *domain.ConfirmationToken) error {
	const query = `
        INSERT INTO pending_confirmation_token (account_id, confirmation_token_hash)
        VALUES ($1, $2)`
	_, err := r.db.Exec(ctx, query, token.AccountID(), token.TokenHash())
	return mapUniqueViolation(err)
}

func (r *confirmationTokenRepository) Get(ctx context.Context, accountID uuid.UUID) (*domain.ConfirmationToken, error) {
	const query = `
        SELECT confirmation_token_hash
        FROM pending_confirmation_token WHERE account_id=$1`

	var hash string
	if err := r.db.QueryRow(ctx, query, accountID).Scan(&hash); err != nil {
		return nil, mapNoRows(err)
	}
	return domain.NewConfirmationToken(accountID, hash)
}

func (r *confirmationTokenRepository) Delete(ctx context.Context, accountID uuid.UUID) error {
	const query = `DELETE FROM pending_confirmation_token WHERE account_id=$1`

	cmd, err := r.db.Exec(ctx, query, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
