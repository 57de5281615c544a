package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/outbox"
	"github.com/spec-kit/identity-service/internal/repository/memory"
	"github.com/spec-kit/identity-service/internal/retry"
	"github.com/spec-kit/identity-service/internal/service"
	"github.com/spec-kit/identity-service/internal/uow"
	"github.com/spec-kit/identity-service/internal/worker"
)

const (
	testEmail    = "jane@example.com"
	testPhone    = "+15551234567"
	testPassword = "s3cret!"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (b *recordingBus) Publish(_ context.Context, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *recordingBus) published() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

type transientErr struct{}

func (transientErr) Error() string   { return "serialization failure" }
func (transientErr) Transient() bool { return true }

type harness struct {
	hashes    *auth.Hasher
	store     *memory.Store
	clock     *testClock
	bus       *recordingBus
	tokens    *auth.TokenProvider
	accounts  *service.AccountService
	auth      *service.AuthService
	passwords *service.PasswordService
	relay     *worker.OutboxRelay
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	bus := &recordingBus{}
	codec := outbox.NewDomainCodec()
	policy := retry.NewPolicy(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	factory := uow.NewFactory(store, policy, outbox.NewWriter(codec), zap.NewNop())
	tokens := auth.NewTokenProvider("test-secret-test-secret-test-sec", "identity-test", 15, clock.Now)

	deps := service.Dependencies{
		UnitOfWork:      factory,
		Hasher:          auth.NewHasher(bcrypt.MinCost),
		Tokens:          tokens,
		RefreshTokenTTL: 21 * 24 * time.Hour,
		Clock:           clock.Now,
		Logger:          zap.NewNop(),
	}

	dispatcher := events.NewDispatcher()
	worker.RegisterEventHandlers(dispatcher,
		service.NewSessionRevoker(zap.NewNop()),
		service.NewNotificationService(bus, zap.NewNop()))

	return &harness{
		hashes:    deps.Hasher,
		store:     store,
		clock:     clock,
		bus:       bus,
		tokens:    tokens,
		accounts:  service.NewAccountService(deps),
		auth:      service.NewAuthService(deps),
		passwords: service.NewPasswordService(deps),
		relay: worker.NewOutboxRelay(worker.RelayDependencies{
			UnitOfWork: factory,
			Codec:      codec,
			Dispatcher: dispatcher,
			Clock:      clock.Now,
		}),
	}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	_, err := h.relay.RunOnce(context.Background())
	require.NoError(t, err)
}

func lastEvent[T domain.Event](t *testing.T, h *harness) T {
	t.Helper()
	published := h.bus.published()
	for i := len(published) - 1; i >= 0; i-- {
		if event, ok := published[i].(T); ok {
			return event
		}
	}
	var zero T
	t.Fatalf("no %T published", zero)
	return zero
}

// createConfirmed registers a customer and confirms it with the secret
// delivered through the bus.
func (h *harness) createConfirmed(t *testing.T, email string) service.CreateAccountResult {
	t.Helper()
	ctx := context.Background()

	created, err := h.accounts.CreateAccount(ctx, service.CreateAccountInput{
		Role: domain.RoleCustomer, Email: email, Phone: testPhone, Password: testPassword,
	})
	require.NoError(t, err)
	h.drain(t)

	event := lastEvent[domain.AccountCreated](t, h)
	require.Equal(t, created.AccountID, event.AccountID)
	require.NoError(t, h.accounts.ConfirmEmail(ctx, created.AccountID, event.ConfirmationToken))
	return created
}

func (h *harness) login(t *testing.T, email, password string) service.AuthResult {
	t.Helper()
	result, err := h.auth.Authenticate(context.Background(), email, password)
	require.NoError(t, err)
	return result
}

func isTransactionFailure(err error) bool {
	var failed *uow.TransactionFailedError
	return errors.As(err, &failed)
}
