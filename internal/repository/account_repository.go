package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
)

type accountRepository struct {
	db Queryer
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(db Queryer) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, role_id, status_id, email, phone, password_hash`

func (r *accountRepository) Add(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO account (id, role_id, status_id, email, phone, password_hash)
        VALUES ($1, $2, $3, $4, $5, $6)`

	s := account.Snapshot()
	_, err := r.db.Exec(ctx, query, s.ID, s.Role.ID(), s.Status.ID(), s.Email, s.Phone, s.PasswordHash)
	return mapUniqueViolation(err)
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM account WHERE id=$1`
	return r.scanOne(ctx, query, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM account WHERE email=$1`
	return r.scanOne(ctx, query, domain.NormalizeEmail(email))
}

func (r *accountRepository) UpdateStatus(ctx context.Context, account *domain.Account) error {
	const query = `UPDATE account SET status_id=$1 WHERE id=$2`

	cmd, err := r.db.Exec(ctx, query, account.Status().ID(), account.ID())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdatePasswordHash(ctx context.Context, account *domain.Account) error {
	const query = `UPDATE account SET password_hash=$1 WHERE id=$2`

	cmd, err := r.db.Exec(ctx, query, account.PasswordHash(), account.ID())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var (
		s        domain.AccountSnapshot
		roleID   int
		statusID int
	)
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&s.ID,
		&roleID,
		&statusID,
		&s.Email,
		&s.Phone,
		&s.PasswordHash,
	); err != nil {
		return nil, mapNoRows(err)
	}
	s.Role = domain.Role(roleID)
	s.Status = domain.Status(statusID)
	return domain.RehydrateAccount(s)
}
