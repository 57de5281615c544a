package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type outboxRepository struct {
	db Queryer
}

// NewOutboxRepository returns a Postgres-backed implementation.
func NewOutboxRepository(db Queryer) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Add(ctx context.Context, message OutboxMessage) error {
	const query = `
        INSERT INTO outbox (event_id, type, content, occurred_on_utc)
        VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, message.EventID, message.Type, message.Content, message.OccurredOnUTC)
	return mapUniqueViolation(err)
}

// ListUnprocessed locks the selected rows so concurrent relays skip them.
func (r *outboxRepository) ListUnprocessed(ctx context.Context, limit int) ([]OutboxMessage, error) {
	const query = `
        SELECT event_id, type, content, occurred_on_utc, processed_on_utc
        FROM outbox
        WHERE processed_on_utc IS NULL
        ORDER BY occurred_on_utc
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.EventID, &m.Type, &m.Content, &m.OccurredOnUTC, &m.ProcessedOnUTC); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, eventID uuid.UUID, processedAt time.Time) error {
	const query = `
        UPDATE outbox SET processed_on_utc=$1
        WHERE event_id=$2 AND processed_on_utc IS NULL`

	cmd, err := r.db.Exec(ctx, query, processedAt.UTC(), eventID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
