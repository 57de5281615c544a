package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRefreshTokenTTL applies when no lifetime is configured.
	DefaultRefreshTokenTTL = 21 * 24 * time.Hour
	// PasswordRecoverTokenTTL bounds how long a recover secret may be used.
	PasswordRecoverTokenTTL = 15 * time.Minute
)

// ConfirmationToken holds the hashed one-time secret of a pending account.
type ConfirmationToken struct {
	accountID uuid.UUID
	tokenHash string
}

// NewConfirmationToken validates the owning account and the hash length.
func NewConfirmationToken(accountID uuid.UUID, tokenHash string) (*ConfirmationToken, error) {
	if accountID == uuid.Nil {
		return nil, invalid("account_id", "must not be empty")
	}
	if len(tokenHash) != PasswordHashLength {
		return nil, invalid("confirmation_token_hash", "must be exactly 60 characters")
	}
	return &ConfirmationToken{accountID: accountID, tokenHash: tokenHash}, nil
}

func (t *ConfirmationToken) AccountID() uuid.UUID { return t.accountID }
func (t *ConfirmationToken) TokenHash() string    { return t.tokenHash }

// RefreshToken records one issued refresh credential.
type RefreshToken struct {
	id        uuid.UUID
	accountID uuid.UUID
	issuedAt  time.Time
	expiresAt time.Time
	revoked   bool
}

// RefreshTokenSnapshot is the persisted shape of a RefreshToken.
type RefreshTokenSnapshot struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	IsRevoked bool
}

// NewRefreshToken issues a token valid for ttl from now. A non-positive ttl
// falls back to DefaultRefreshTokenTTL.
func NewRefreshToken(accountID uuid.UUID, now time.Time, ttl time.Duration) (*RefreshToken, error) {
	if accountID == uuid.Nil {
		return nil, invalid("account_id", "must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	now = now.UTC()
	return &RefreshToken{id: uuid.New(), accountID: accountID, issuedAt: now, expiresAt: now.Add(ttl)}, nil
}

// RehydrateRefreshToken rebuilds a stored token.
func RehydrateRefreshToken(s RefreshTokenSnapshot) (*RefreshToken, error) {
	if s.ID == uuid.Nil {
		return nil, invalid("id", "must not be empty")
	}
	if s.AccountID == uuid.Nil {
		return nil, invalid("account_id", "must not be empty")
	}
	if !s.ExpiresAt.After(s.IssuedAt) {
		return nil, invalid("expires_at", "must be after issue time")
	}
	return &RefreshToken{
		id:        s.ID,
		accountID: s.AccountID,
		issuedAt:  s.IssuedAt.UTC(),
		expiresAt: s.ExpiresAt.UTC(),
		revoked:   s.IsRevoked,
	}, nil
}

func (t *RefreshToken) ID() uuid.UUID        { return t.id }
func (t *RefreshToken) AccountID() uuid.UUID { return t.accountID }
func (t *RefreshToken) IssuedAt() time.Time  { return t.issuedAt }
func (t *RefreshToken) ExpiresAt() time.Time { return t.expiresAt }
func (t *RefreshToken) IsRevoked() bool      { return t.revoked }

// IsValid is false once revoked, whatever the expiry.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.revoked && now.Before(t.expiresAt)
}

// Revoke is one-way.
func (t *RefreshToken) Revoke() {
	t.revoked = true
}

func (t *RefreshToken) Snapshot() RefreshTokenSnapshot {
	return RefreshTokenSnapshot{
		ID:        t.id,
		AccountID: t.accountID,
		IssuedAt:  t.issuedAt,
		ExpiresAt: t.expiresAt,
		IsRevoked: t.revoked,
	}
}

// PasswordRecoverToken is a short lived, single use password reset grant.
// Several may be valid for one account at the same time.
type PasswordRecoverToken struct {
	AggregateRoot

	id        uuid.UUID
	accountID uuid.UUID
	tokenHash string
	expiresAt time.Time
	applied   bool
}

// PasswordRecoverTokenSnapshot is the persisted shape of a PasswordRecoverToken.
type PasswordRecoverTokenSnapshot struct {
	ID               uuid.UUID
	AccountID        uuid.UUID
	TokenHash        string
	ExpiresAt        time.Time
	IsAlreadyApplied bool
}

// NewPasswordRecoverToken creates a token expiring PasswordRecoverTokenTTL
// from now and raises PasswordRecoverTokenCreated carrying the plain secret
// for delivery.
func NewPasswordRecoverToken(accountID uuid.UUID, email, secret, secretHash string, now time.Time) (*PasswordRecoverToken, error) {
	if accountID == uuid.Nil {
		return nil, invalid("account_id", "must not be empty")
	}
	if secret == "" {
		return nil, invalid("recover_token", "must not be empty")
	}
	if len(secretHash) != PasswordHashLength {
		return nil, invalid("recover_token_hash", "must be exactly 60 characters")
	}

	now = now.UTC()
	token := &PasswordRecoverToken{
		id:        uuid.New(),
		accountID: accountID,
		tokenHash: secretHash,
		expiresAt: now.Add(PasswordRecoverTokenTTL),
	}
	token.raise(PasswordRecoverTokenCreated{
		EventMeta:      newEventMeta(now),
		RecoverTokenID: token.id,
		AccountID:      accountID,
		Email:          NormalizeEmail(email),
		RecoverToken:   secret,
		ExpiresAt:      token.expiresAt,
	})
	return token, nil
}

// RehydratePasswordRecoverToken rebuilds a stored token.
func RehydratePasswordRecoverToken(s PasswordRecoverTokenSnapshot) (*PasswordRecoverToken, error) {
	if s.ID == uuid.Nil {
		return nil, invalid("id", "must not be empty")
	}
	if s.AccountID == uuid.Nil {
		return nil, invalid("account_id", "must not be empty")
	}
	if len(s.TokenHash) != PasswordHashLength {
		return nil, invalid("recover_token_hash", "must be exactly 60 characters")
	}
	return &PasswordRecoverToken{
		id:        s.ID,
		accountID: s.AccountID,
		tokenHash: s.TokenHash,
		expiresAt: s.ExpiresAt.UTC(),
		applied:   s.IsAlreadyApplied,
	}, nil
}

func (t *PasswordRecoverToken) ID() uuid.UUID          { return t.id }
func (t *PasswordRecoverToken) AccountID() uuid.UUID   { return t.accountID }
func (t *PasswordRecoverToken) TokenHash() string      { return t.tokenHash }
func (t *PasswordRecoverToken) ExpiresAt() time.Time   { return t.expiresAt }
func (t *PasswordRecoverToken) IsAlreadyApplied() bool { return t.applied }

// IsValid holds until expiry, and never again after Apply.
func (t *PasswordRecoverToken) IsValid(now time.Time) bool {
	return !t.applied && now.Before(t.expiresAt)
}

// Apply consumes the token.
func (t *PasswordRecoverToken) Apply() {
	t.applied = true
}

func (t *PasswordRecoverToken) Snapshot() PasswordRecoverTokenSnapshot {
	return PasswordRecoverTokenSnapshot{
		ID:               t.id,
		AccountID:        t.accountID,
		TokenHash:        t.tokenHash,
		ExpiresAt:        t.expiresAt,
		IsAlreadyApplied: t.applied,
	}
}
