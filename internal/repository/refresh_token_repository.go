package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/identity-service/internal/domain"
)

type refreshTokenRepository struct {
	db Queryer
}

// NewRefreshTokenRepository returns a Postgres-backed implementation.
func NewRefreshTokenRepository(db Queryer) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

const refreshTokenColumns = `id, account_id, is_revoked, issue_datetime, expires_at`

func (r *refreshTokenRepository) Add(ctx context.Context, token *domain.RefreshToken) error {
	const query = `
        INSERT INTO refresh_token_info (id, account_id, is_revoked, issue_datetime, expires_at)
        VALUES ($1, $2, $3, $4, $5)`

	s := token.Snapshot()
	_, err := r.db.Exec(ctx, query, s.ID, s.AccountID, s.IsRevoked, s.IssuedAt, s.ExpiresAt)
	return mapUniqueViolation(err)
}

func (r *refreshTokenRepository) GetNotRevokedToken(ctx context.Context, id uuid.UUID) (*domain.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_token_info WHERE id=$1 AND is_revoked=false`

	token, err := scanRefreshToken(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return token, nil
}

func (r *refreshTokenRepository) GetNotRevokedTokensByAccountID(ctx context.Context, accountID uuid.UUID) ([]*domain.RefreshToken, error) {
	const query = `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_token_info
        WHERE account_id=$1 AND is_revoked=false
        ORDER BY issue_datetime`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*domain.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (r *refreshTokenRepository) AddTokenAndRevokeOldToken(ctx context.Context, newToken, oldToken *domain.RefreshToken) error {
	const revoke = `UPDATE refresh_token_info SET is_revoked=true WHERE id=$1 AND is_revoked=false`

	cmd, err := r.db.Exec(ctx, revoke, oldToken.ID())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyRevoked
	}
	oldToken.Revoke()
	return r.Add(ctx, newToken)
}

func (r *refreshTokenRepository) UpdateRevokeStatus(ctx context.Context, token *domain.RefreshToken) error {
	const query = `UPDATE refresh_token_info SET is_revoked=$1 WHERE id=$2`

	cmd, err := r.db.Exec(ctx, query, token.IsRevoked(), token.ID())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var s domain.RefreshTokenSnapshot
	if err := row.Scan(&s.ID, &s.AccountID, &s.IsRevoked, &s.IssuedAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	return domain.RehydrateRefreshToken(s)
}
