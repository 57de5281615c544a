package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/repository"
)

// SessionRevoker ends every session of an account once its password changed.
// Tokens minted between the change and the relay run are revoked too, since a
// rotation in that window may descend from a stolen pre-change token.
type SessionRevoker struct {
	logger *zap.Logger
}

// NewSessionRevoker creates the handler.
func NewSessionRevoker(logger *zap.Logger) *SessionRevoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRevoker{logger: logger}
}

// RegisterHandlers subscribes to AccountPasswordUpdated.
func (r *SessionRevoker) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(domain.EventAccountPasswordUpdated, r.handlePasswordUpdated)
}

// handlePasswordUpdated runs on the relay's transaction. Reprocessing finds
// nothing left to revoke.
func (r *SessionRevoker) handlePasswordUpdated(ctx context.Context, repos repository.Repositories, event domain.Event) error {
	updated, ok := event.(domain.AccountPasswordUpdated)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, event.EventType())
	}

	tokens, err := repos.RefreshTokens.GetNotRevokedTokensByAccountID(ctx, updated.AccountID)
	if err != nil {
		return fmt.Errorf("list refresh tokens: %w", err)
	}
	revoked := 0
	for _, token := range tokens {
		token.Revoke()
		if err := repos.RefreshTokens.UpdateRevokeStatus(ctx, token); err != nil {
			return fmt.Errorf("revoke refresh token %s: %w", token.ID(), err)
		}
		revoked++
	}

	if revoked > 0 {
		r.logger.Info("sessions revoked after password update",
			zap.String("account_id", updated.AccountID.String()),
			zap.Int("count", revoked))
	}
	return nil
}
