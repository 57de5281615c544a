// Package service holds the use-case handlers. Each one checks the caller's
// context, reads its preconditions, mutates aggregates in memory and persists
// the result through one unit of work.
package service

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/uow"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 30

	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72
)

// MessageBus delivers relayed domain events to other services.
type MessageBus interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Dependencies are shared by every use-case service.
type Dependencies struct {
	UnitOfWork      *uow.Factory
	Hasher          *auth.Hasher
	Tokens          *auth.TokenProvider
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
	Logger          *zap.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.RefreshTokenTTL <= 0 {
		d.RefreshTokenTTL = domain.DefaultRefreshTokenTTL
	}
	return d
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength || len(password) > maxPasswordBytes {
		return ErrPasswordLength
	}
	return nil
}
