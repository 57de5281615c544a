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

// AuthService authenticates credentials, rotates refresh tokens and
// authorizes access tokens.
type AuthService struct {
	deps Dependencies
}

// NewAuthService builds the service.
func NewAuthService(deps Dependencies) *AuthService {
	return &AuthService{deps: deps.withDefaults()}
}

// AuthResult is a freshly issued credential pair.
type AuthResult struct {
	AccountID             uuid.UUID
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// Authenticate checks email and password and issues a credential pair. The
// tokens are returned only once the refresh token is committed.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (AuthResult, error) {
	if err := ctx.Err(); err != nil {
		return AuthResult{}, err
	}

	account, err := s.deps.UnitOfWork.Reader().Accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, ErrAccountNotFound
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup account by email: %w", err)
	}
	if !account.CanAuthorize() {
		return AuthResult{}, ErrCannotAuthenticate
	}
	if !s.deps.Hasher.Matches(account.PasswordHash(), password) {
		return AuthResult{}, ErrInvalidCredentials
	}

	refresh, err := domain.NewRefreshToken(account.ID(), s.deps.Clock(), s.deps.RefreshTokenTTL)
	if err != nil {
		return AuthResult{}, err
	}
	result, err := s.issue(account, refresh)
	if err != nil {
		return AuthResult{}, err
	}

	work, err := s.deps.UnitOfWork.Begin(ctx)
	if err != nil {
		return AuthResult{}, err
	}
	defer work.Rollback()

	if err := work.RefreshTokens().Add(work.Context(), refresh); err != nil {
		return AuthResult{}, fmt.Errorf("store refresh token: %w", err)
	}
	if err := work.Commit(); err != nil {
		return AuthResult{}, err
	}

	s.deps.Logger.Info("account authenticated", zap.String("account_id", account.ID().String()))
	return result, nil
}

// RefreshAccessToken rotates a refresh token: the presented token is revoked
// and a new pair issued. Of two concurrent rotations of the same token exactly
// one wins; the other gets ErrRefreshTokenInvalid.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (AuthResult, error) {
	if err := ctx.Err(); err != nil {
		return AuthResult{}, err
	}

	tokenID, err := s.deps.Tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %w", ErrRefreshTokenInvalid, err)
	}

	work, err := s.deps.UnitOfWork.Begin(ctx)
	if err != nil {
		return AuthResult{}, err
	}
	defer work.Rollback()
	wctx := work.Context()
	now := s.deps.Clock()

	stored, err := work.RefreshTokens().GetNotRevokedToken(wctx, tokenID)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, ErrRefreshTokenInvalid
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("load refresh token: %w", err)
	}
	if !stored.IsValid(now) {
		return AuthResult{}, ErrRefreshTokenInvalid
	}

	account, err := work.Accounts().GetByID(wctx, stored.AccountID())
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, missingAccount(stored.AccountID(), "refresh token "+stored.ID().String())
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("load account: %w", err)
	}
	if !account.CanAuthorize() {
		return AuthResult{}, ErrCannotAuthenticate
	}

	rotated, err := domain.NewRefreshToken(account.ID(), now, s.deps.RefreshTokenTTL)
	if err != nil {
		return AuthResult{}, err
	}
	result, err := s.issue(account, rotated)
	if err != nil {
		return AuthResult{}, err
	}

	if err := work.RefreshTokens().AddTokenAndRevokeOldToken(wctx, rotated, stored); err != nil {
		return AuthResult{}, lostRotation(err)
	}
	if err := work.Commit(); err != nil {
		return AuthResult{}, lostRotation(err)
	}

	s.deps.Logger.Info("refresh token rotated",
		zap.String("account_id", account.ID().String()),
		zap.String("revoked_token_id", stored.ID().String()))
	return result, nil
}

// Authorize verifies an access token and re-checks the account's current
// stored status and role. An empty allow list admits every role.
func (s *AuthService) Authorize(ctx context.Context, accessToken string, allowed ...domain.Role) (auth.Principal, error) {
	if err := ctx.Err(); err != nil {
		return auth.Principal{}, err
	}

	claims, err := s.deps.Tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return auth.Principal{}, err
	}

	account, err := s.deps.UnitOfWork.Reader().Accounts.GetByID(ctx, claims.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return auth.Principal{}, ErrAccountNotFound
	}
	if err != nil {
		return auth.Principal{}, fmt.Errorf("load account: %w", err)
	}
	if !account.CanAuthorize() {
		return auth.Principal{}, ErrCannotAuthenticate
	}
	if !auth.HasRole(account.Role(), allowed...) {
		return auth.Principal{}, ErrForbidden
	}

	return auth.Principal{
		AccountID: account.ID(),
		Role:      account.Role(),
		Status:    account.Status(),
		Email:     account.Email(),
	}, nil
}

func (s *AuthService) issue(account *domain.Account, refresh *domain.RefreshToken) (AuthResult, error) {
	access, accessExpiresAt, err := s.deps.Tokens.IssueAccessToken(account)
	if err != nil {
		return AuthResult{}, err
	}
	refreshJWT, err := s.deps.Tokens.IssueRefreshToken(refresh.ID(), refresh.ExpiresAt())
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccountID:             account.ID(),
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          refreshJWT,
		RefreshTokenExpiresAt: refresh.ExpiresAt(),
	}, nil
}

func lostRotation(err error) error {
	if errors.Is(err, repository.ErrAlreadyRevoked) {
		return ErrRefreshTokenInvalid
	}
	return err
}
