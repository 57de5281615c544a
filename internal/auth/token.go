package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
)

var (
	// ErrTokenExpired means the token was genuine but is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers tampered, malformed, foreign or wrong-type tokens.
	ErrTokenInvalid = errors.New("token invalid")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAccessTTL = 15 * time.Minute
)

// TokenProvider issues and verifies HS256 bearer tokens. It is stateless
// and safe for concurrent use.
type TokenProvider struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	clock     func() time.Time
}

// NewTokenProvider builds a provider. A nil clock uses UTC wall time.
func NewTokenProvider(secret, issuer string, accessTTLMinutes int, clock func() time.Time) *TokenProvider {
	ttl := time.Duration(accessTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TokenProvider{secret: []byte(secret), issuer: issuer, accessTTL: ttl, clock: clock}
}

// AccessClaims is the identity and authorization snapshot in an access token.
type AccessClaims struct {
	AccountID uuid.UUID
	Role      domain.Role
	Status    domain.Status
}

type accessClaims struct {
	TokenType string `json:"typ"`
	RoleID    int    `json:"role"`
	StatusID  int    `json:"status"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a short lived token for account.
func (p *TokenProvider) IssueAccessToken(account *domain.Account) (string, time.Time, error) {
	now := p.clock()
	expiresAt := now.Add(p.accessTTL)
	claims := &accessClaims{
		TokenType: tokenTypeAccess,
		RoleID:    account.Role().ID(),
		StatusID:  account.Status().ID(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   account.ID().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expiresAt, nil
}

// IssueRefreshToken signs an opaque handle to a stored refresh token. It
// names nothing but the token id.
func (p *TokenProvider) IssueRefreshToken(id uuid.UUID, expiresAt time.Time) (string, error) {
	claims := &refreshClaims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			ID:        id.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(p.clock()),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return token, nil
}

// VerifyAccessToken checks signature, issuer, expiry and type.
func (p *TokenProvider) VerifyAccessToken(token string) (AccessClaims, error) {
	claims := &accessClaims{}
	if err := p.parse(token, claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return AccessClaims{}, ErrTokenInvalid
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return AccessClaims{}, ErrTokenInvalid
	}
	role, err := domain.ParseRole(claims.RoleID)
	if err != nil {
		return AccessClaims{}, ErrTokenInvalid
	}
	status, err := domain.ParseStatus(claims.StatusID)
	if err != nil {
		return AccessClaims{}, ErrTokenInvalid
	}
	return AccessClaims{AccountID: accountID, Role: role, Status: status}, nil
}

// VerifyRefreshToken returns the stored token id the refresh token refers to.
func (p *TokenProvider) VerifyRefreshToken(token string) (uuid.UUID, error) {
	claims := &refreshClaims{}
	if err := p.parse(token, claims); err != nil {
		return uuid.Nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return uuid.Nil, ErrTokenInvalid
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return id, nil
}

func (p *TokenProvider) parse(token string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clock),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
