package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

// AccountService registers accounts and confirms their email addresses.
type AccountService struct {
	deps Dependencies
}

// NewAccountService builds the service.
func NewAccountService(deps Dependencies) *AccountService {
	return &AccountService{deps: deps.withDefaults()}
}

// CreateAccountInput is a registration request.
type CreateAccountInput struct {
	Role     domain.Role
	Email    string
	Phone    string
	Password string
}

// CreateAccountResult identifies the new account. The confirmation secret
// leaves the service only through the AccountCreated event.
type CreateAccountResult struct {
	AccountID uuid.UUID
}

// CreateAccount stores a pending account with its confirmation token and
// stages AccountCreated, all in one transaction.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (CreateAccountResult, error) {
	if err := ctx.Err(); err != nil {
		return CreateAccountResult{}, err
	}

	_, err := s.deps.UnitOfWork.Reader().Accounts.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return CreateAccountResult{}, ErrAccountAlreadyExists
	case !errors.Is(err, repository.ErrNotFound):
		return CreateAccountResult{}, fmt.Errorf("lookup account by email: %w", err)
	}
	if err := validatePassword(in.Password); err != nil {
		return CreateAccountResult{}, err
	}

	passwordHash, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		return CreateAccountResult{}, err
	}
	secret, err := auth.NewSecret()
	if err != nil {
		return CreateAccountResult{}, err
	}
	secretHash, err := s.deps.Hasher.Hash(secret)
	if err != nil {
		return CreateAccountResult{}, err
	}

	account, err := domain.NewAccount(in.Role, in.Email, in.Phone, passwordHash, secret, s.deps.Clock())
	if err != nil {
		return CreateAccountResult{}, err
	}
	confirmation, err := domain.NewConfirmationToken(account.ID(), secretHash)
	if err != nil {
		return CreateAccountResult{}, err
	}

	work, err := s.deps.UnitOfWork.Begin(ctx)
	if err != nil {
		return CreateAccountResult{}, err
	}
	defer work.Rollback()
	wctx := work.Context()

	if err := work.Accounts().Add(wctx, account); err != nil {
		return CreateAccountResult{}, duplicateAccount(err)
	}
	if err := work.ConfirmationTokens().Add(wctx, confirmation); err != nil {
		return CreateAccountResult{}, fmt.Errorf("store confirmation token: %w", err)
	}
	if err := work.PublishDomainEvents(account); err != nil {
		return CreateAccountResult{}, err
	}
	if err := work.Commit(); err != nil {
		return CreateAccountResult{}, duplicateAccount(err)
	}

	s.deps.Logger.Info("account created",
		zap.String("account_id", account.ID().String()),
		zap.String("role", account.Role().String()))
	return CreateAccountResult{AccountID: account.ID()}, nil
}

// ConfirmEmail consumes the account's confirmation token and confirms it.
func (s *AccountService) ConfirmEmail(ctx context.Context, accountID uuid.UUID, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	work, err := s.deps.UnitOfWork.Begin(ctx)
	if err != nil {
		return err
	}
	defer work.Rollback()
	wctx := work.Context()

	confirmation, err := work.ConfirmationTokens().Get(wctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrConfirmationTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("load confirmation token: %w", err)
	}
	if !s.deps.Hasher.Matches(confirmation.TokenHash(), token) {
		return ErrConfirmationTokenInvalid
	}

	account, err := work.Accounts().GetByID(wctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return missingAccount(accountID, "confirmation token")
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if err := account.Confirm(); err != nil {
		return err
	}

	if err := work.ConfirmationTokens().Delete(wctx, accountID); err != nil {
		return consumedToken(err, ErrConfirmationTokenInvalid)
	}
	if err := work.Accounts().UpdateStatus(wctx, account); err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	if err := work.Commit(); err != nil {
		return consumedToken(err, ErrConfirmationTokenInvalid)
	}

	s.deps.Logger.Info("account confirmed", zap.String("account_id", accountID.String()))
	return nil
}

func duplicateAccount(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrAccountAlreadyExists
	}
	return err
}

// consumedToken maps a lost race on a single-use token to sentinel.
func consumedToken(err, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}

// GetAccount loads an account for display.
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	account, err := s.deps.UnitOfWork.Reader().Accounts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}
