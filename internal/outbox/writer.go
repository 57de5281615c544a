package outbox

import (
	"context"
	"fmt"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

// Writer stages aggregate events as outbox rows.
type Writer struct {
	codec *Codec
}

// NewWriter builds a writer encoding with codec.
func NewWriter(codec *Codec) *Writer {
	return &Writer{codec: codec}
}

// PublishDomainEvents inserts one row per buffered event through repo, which
// must be bound to the caller's open transaction. It never commits. The
// aggregate buffer is cleared once every row is staged.
func (w *Writer) PublishDomainEvents(ctx context.Context, repo repository.OutboxRepository, source domain.EventSource) error {
	for _, event := range source.DomainEvents() {
		message, err := w.codec.Encode(event)
		if err != nil {
			return err
		}
		if err := repo.Add(ctx, message); err != nil {
			return fmt.Errorf("stage %s event %s: %w", message.Type, message.EventID, err)
		}
	}
	source.ClearDomainEvents()
	return nil
}
