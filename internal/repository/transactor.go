package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewPgTransactor opens read-committed transactions on pool.
func NewPgTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) Begin(ctx context.Context) (Tx, error) {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, repos: NewRepositories(tx)}, nil
}

func (t *pgTransactor) Repositories() Repositories {
	return NewRepositories(t.pool)
}

type pgTx struct {
	tx    pgx.Tx
	repos Repositories
}

func (t *pgTx) Repositories() Repositories { return t.repos }

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
