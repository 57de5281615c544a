package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PasswordHashLength is the length of a bcrypt hash, the only accepted format.
const PasswordHashLength = 60

const maxEmailLength = 254

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)
)

// Account is the identity aggregate. Fields are only reachable through
// validating setters and transitions.
type Account struct {
	AggregateRoot

	id           uuid.UUID
	role         Role
	status       Status
	email        string
	phone        string
	passwordHash string
}

// AccountSnapshot is the persisted shape of an Account.
type AccountSnapshot struct {
	ID           uuid.UUID
	Role         Role
	Status       Status
	Email        string
	Phone        string
	PasswordHash string
}

// NewAccount creates a pending account and raises AccountCreated.
// Email uniqueness is the caller's precondition.
func NewAccount(role Role, email, phone, passwordHash, confirmationToken string, now time.Time) (*Account, error) {
	if !role.Valid() {
		return nil, invalid("role", "unknown role")
	}
	if strings.TrimSpace(confirmationToken) == "" {
		return nil, invalid("confirmation_token", "must not be empty")
	}

	account := &Account{id: uuid.New(), role: role, status: StatusPendingConfirmation}
	if err := account.SetEmail(email); err != nil {
		return nil, err
	}
	if err := account.SetPhone(phone); err != nil {
		return nil, err
	}
	if err := validatePasswordHash(passwordHash); err != nil {
		return nil, err
	}
	account.passwordHash = passwordHash

	account.raise(AccountCreated{
		EventMeta:         newEventMeta(now),
		AccountID:         account.id,
		Email:             account.email,
		Role:              role,
		ConfirmationToken: confirmationToken,
	})
	return account, nil
}

// RehydrateAccount rebuilds a stored account, re-checking every invariant.
// No event is raised.
func RehydrateAccount(s AccountSnapshot) (*Account, error) {
	if s.ID == uuid.Nil {
		return nil, invalid("id", "must not be empty")
	}
	if !s.Role.Valid() {
		return nil, invalid("role", "unknown role")
	}
	if _, err := ParseStatus(s.Status.ID()); err != nil {
		return nil, err
	}

	account := &Account{id: s.ID, role: s.Role, status: s.Status}
	if err := account.SetEmail(s.Email); err != nil {
		return nil, err
	}
	if err := account.SetPhone(s.Phone); err != nil {
		return nil, err
	}
	if err := validatePasswordHash(s.PasswordHash); err != nil {
		return nil, err
	}
	account.passwordHash = s.PasswordHash
	return account, nil
}

func (a *Account) ID() uuid.UUID        { return a.id }
func (a *Account) Role() Role           { return a.role }
func (a *Account) Status() Status       { return a.status }
func (a *Account) Email() string        { return a.email }
func (a *Account) Phone() string        { return a.phone }
func (a *Account) PasswordHash() string { return a.passwordHash }

// CanAuthorize reports whether the account may hold live credentials.
func (a *Account) CanAuthorize() bool { return a.status.CanAuthorize() }

// Snapshot returns the persisted shape.
func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:           a.id,
		Role:         a.role,
		Status:       a.status,
		Email:        a.email,
		Phone:        a.phone,
		PasswordHash: a.passwordHash,
	}
}

// SetRole applies the role exchange rules.
func (a *Account) SetRole(role Role) error {
	if !role.Valid() {
		return invalid("role", "unknown role")
	}
	if !a.role.CanBeChangedTo(role) {
		return violation("role %s cannot be changed to %s", a.role, role)
	}
	a.role = role
	return nil
}

// SetEmail normalizes to lower case and validates the address.
func (a *Account) SetEmail(email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return invalid("email", "must not be empty")
	}
	if len(normalized) > maxEmailLength || !emailPattern.MatchString(normalized) {
		return invalid("email", "malformed address")
	}
	a.email = normalized
	return nil
}

func (a *Account) SetPhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return invalid("phone", "malformed number")
	}
	a.phone = phone
	return nil
}

// SetPasswordHash replaces the hash and raises AccountPasswordUpdated.
func (a *Account) SetPasswordHash(hash string, now time.Time) error {
	if err := validatePasswordHash(hash); err != nil {
		return err
	}
	a.passwordHash = hash
	a.raise(AccountPasswordUpdated{EventMeta: newEventMeta(now), AccountID: a.id})
	return nil
}

func (a *Account) Confirm() error    { return a.transition(StatusConfirmed) }
func (a *Account) Deactivate() error { return a.transition(StatusDeactivated) }
func (a *Account) Delete() error     { return a.transition(StatusDeleted) }

func (a *Account) transition(target Status) error {
	ok, err := a.status.CanBeChangedToThisStatus(target)
	if err != nil {
		return err
	}
	if !ok {
		return violation("account status %s cannot be changed to %s", a.status, target)
	}
	a.status = target
	return nil
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePasswordHash(hash string) error {
	if len(hash) != PasswordHashLength {
		return invalid("password_hash", "must be exactly 60 characters")
	}
	return nil
}
