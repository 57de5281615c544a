package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrAccountAlreadyExists     = errors.New("account with this email already exists")
	ErrAccountNotFound          = errors.New("account not found")
	ErrPasswordLength           = fmt.Errorf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrCannotAuthenticate       = errors.New("account cannot authenticate in its current status")
	ErrRefreshTokenInvalid      = errors.New("refresh token invalid")
	ErrConfirmationTokenInvalid = errors.New("confirmation token invalid")
	ErrRecoverTokenInvalid      = errors.New("recover token invalid")
	ErrForbidden                = errors.New("account role not allowed")
)

// ConsistencyError reports stored state that breaks a cross-entity invariant,
// such as a live token whose account is gone. It is never the caller's fault.
type ConsistencyError struct {
	Entity string
	ID     uuid.UUID
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent state: %s %s: %s", e.Entity, e.ID, e.Detail)
}

func missingAccount(id uuid.UUID, referencedBy string) error {
	return &ConsistencyError{Entity: "account", ID: id, Detail: "referenced by " + referencedBy + " but missing"}
}
