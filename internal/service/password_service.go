package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

// PasswordService issues password recover tokens and applies them.
type PasswordService struct {
	deps Dependencies
}

// NewPasswordService builds the service.
func NewPasswordService(deps Dependencies) *PasswordService {
	return &PasswordService{deps: deps.withDefaults()}
}

// RecoverPasswordResult identifies the issued token. The secret itself is
// delivered only through the PasswordRecoverTokenCreated event.
type RecoverPasswordResult struct {
	RecoverTokenID uuid.UUID
	ExpiresAt      time.Time
}

// RecoverPassword issues a recover token for the account owning email.
// Earlier unexpired tokens stay valid.
func (s *PasswordService) RecoverPassword(ctx context.Context, email string) (RecoverPasswordResult, error) {
	if err := ctx.Err(); err != nil {
		return RecoverPasswordResult{}, err
	}

	account, err := s.deps.UnitOfWork.Reader().Accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return RecoverPasswordResult{}, ErrAccountNotFound
	}
	if err != nil {
		return RecoverPasswordResult{}, fmt.Errorf("lookup account by email: %w", err)
	}

	secret, err := auth.NewSecret()
	if err != nil {
		return RecoverPasswordResult{}, err
	}
	secretHash, err := s.deps.Hasher.Hash(secret)
	if err != nil {
		return RecoverPasswordResult{}, err
	}
	token, err := domain.NewPasswordRecoverToken(account.ID(), account.Email(), secret, secretHash, s.deps.Clock())
	if err != nil {
		return RecoverPasswordResult{}, err
	}

	work, err := s.deps.UnitOfWork.Begin(ctx)
	if err != nil {
		return RecoverPasswordResult{}, err
	}
	defer work.Rollback()

	if err := work.RecoverTokens().Add(work.Context(), token); err != nil {
		return RecoverPasswordResult{}, fmt.Errorf("store recover token: %w", err)
	}
	if err := work.PublishDomainEvents(token); err != nil {
		return RecoverPasswordResult{}, err
	}
	if err := work.Commit(); err != nil {
		return RecoverPasswordResult{}, err
	}

	s.deps.Logger.Info("password recover token issued",
		zap.String("account_id", account.ID().String()),
		zap.String("recover_token_id", token.ID().String()))
	return RecoverPasswordResult{RecoverTokenID: token.ID(), ExpiresAt: token.ExpiresAt()}, nil
}

// UpdatePasswordInput applies a recover token.
type UpdatePasswordInput struct {
	Email          string
	RecoverTokenID uuid.UUID
	RecoverToken   string
	NewPassword    string
}

// UpdatePassword consumes a recover token and sets the new password. The
// resulting AccountPasswordUpdated event revokes the account's refresh
// tokens once relayed.
func (s *PasswordService) UpdatePassword(ctx context.Context, in UpdatePasswordInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	work, err := s.deps.UnitOfWork.Begin(ctx)
	if err != nil {
		return err
	}
	defer work.Rollback()
	wctx := work.Context()
	now := s.deps.Clock()

	account, err := work.Accounts().GetByEmail(wctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup account by email: %w", err)
	}

	token, err := work.RecoverTokens().Get(wctx, in.RecoverTokenID, account.ID())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRecoverTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("load recover token: %w", err)
	}
	if !token.IsValid(now) || !s.deps.Hasher.Matches(token.TokenHash(), in.RecoverToken) {
		return ErrRecoverTokenInvalid
	}
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}

	hash, err := s.deps.Hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	token.Apply()
	if err := account.SetPasswordHash(hash, now); err != nil {
		return err
	}

	if err := work.RecoverTokens().UpdateAppliedStatus(wctx, token); err != nil {
		return consumedToken(err, ErrRecoverTokenInvalid)
	}
	if err := work.Accounts().UpdatePasswordHash(wctx, account); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if err := work.PublishDomainEvents(account); err != nil {
		return err
	}
	if err := work.Commit(); err != nil {
		return consumedToken(err, ErrRecoverTokenInvalid)
	}

	s.deps.Logger.Info("password updated",
		zap.String("account_id", account.ID().String()),
		zap.String("recover_token_id", token.ID().String()))
	return nil
}
