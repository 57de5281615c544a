package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// EventType is the discriminator persisted with every outbox row.
type EventType string

const (
	EventAccountCreated              EventType = "account.created"
	EventAccountPasswordUpdated      EventType = "account.password_updated"
	EventPasswordRecoverTokenCreated EventType = "password_recover_token.created"
)

// EventTypes lists every event type aggregates raise.
func EventTypes() []EventType {
	return []EventType{EventAccountCreated, EventAccountPasswordUpdated, EventPasswordRecoverTokenCreated}
}

// Event is a fact raised by an aggregate and relayed after commit.
type Event interface {
	EventID() uuid.UUID
	EventType() EventType
	OccurredOn() time.Time
}

// EventMeta carries the identity and timestamp shared by all events.
type EventMeta struct {
	ID            uuid.UUID `json:"event_id"`
	OccurredOnUTC time.Time `json:"occurred_on_utc"`
}

func newEventMeta(now time.Time) EventMeta {
	return EventMeta{ID: uuid.New(), OccurredOnUTC: now.UTC()}
}

func (m EventMeta) EventID() uuid.UUID    { return m.ID }
func (m EventMeta) OccurredOn() time.Time { return m.OccurredOnUTC }

// AccountCreated is raised by NewAccount. ConfirmationToken is the one-time
// secret the confirmation email links back with.
type AccountCreated struct {
	EventMeta
	AccountID         uuid.UUID `json:"account_id"`
	Email             string    `json:"email"`
	Role              Role      `json:"role_id"`
	ConfirmationToken string    `json:"confirmation_token"`
}

func (AccountCreated) EventType() EventType { return EventAccountCreated }

// AccountPasswordUpdated triggers revocation of the account's refresh tokens.
type AccountPasswordUpdated struct {
	EventMeta
	AccountID uuid.UUID `json:"account_id"`
}

func (AccountPasswordUpdated) EventType() EventType { return EventAccountPasswordUpdated }

// PasswordRecoverTokenCreated hands the recover secret to out-of-band delivery.
type PasswordRecoverTokenCreated struct {
	EventMeta
	RecoverTokenID uuid.UUID `json:"recover_token_id"`
	AccountID      uuid.UUID `json:"account_id"`
	Email          string    `json:"email"`
	RecoverToken   string    `json:"recover_token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (PasswordRecoverTokenCreated) EventType() EventType { return EventPasswordRecoverTokenCreated }

// EventSource is implemented by aggregates buffering domain events.
type EventSource interface {
	DomainEvents() []Event
	ClearDomainEvents()
}

// AggregateRoot buffers events until the outbox stages them.
type AggregateRoot struct {
	events []Event
}

// DomainEvents returns a copy of the buffered events in raise order.
func (a *AggregateRoot) DomainEvents() []Event {
	return slices.Clone(a.events)
}

// ClearDomainEvents drops the buffer after staging.
func (a *AggregateRoot) ClearDomainEvents() {
	a.events = nil
}

func (a *AggregateRoot) raise(event Event) {
	a.events = append(a.events, event)
}
