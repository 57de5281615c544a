package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apihttp "github.com/spec-kit/identity-service/internal/api/http"
	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/outbox"
	"github.com/spec-kit/identity-service/internal/repository/memory"
	"github.com/spec-kit/identity-service/internal/retry"
	"github.com/spec-kit/identity-service/internal/service"
	"github.com/spec-kit/identity-service/internal/uow"
	"github.com/spec-kit/identity-service/internal/worker"
)

type capturingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *capturingBus) Publish(_ context.Context, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *capturingBus) confirmationToken(t *testing.T, accountID string) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range b.events {
		if created, ok := event.(domain.AccountCreated); ok && created.AccountID.String() == accountID {
			return created.ConfirmationToken
		}
	}
	t.Fatalf("no AccountCreated for %s", accountID)
	return ""
}

func (b *capturingBus) recoverToken(t *testing.T) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if created, ok := b.events[i].(domain.PasswordRecoverTokenCreated); ok {
			return created.RecoverToken
		}
	}
	t.Fatal("no PasswordRecoverTokenCreated published")
	return ""
}

type testServer struct {
	app     *fiber.App
	relay   *worker.OutboxRelay
	bus     *capturingBus
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore()
	codec := outbox.NewDomainCodec()
	policy := retry.NewPolicy(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	factory := uow.NewFactory(store, policy, outbox.NewWriter(codec), zap.NewNop())
	deps := service.Dependencies{
		UnitOfWork: factory,
		Hasher:     auth.NewHasher(bcrypt.MinCost),
		Tokens:     auth.NewTokenProvider("router-test-secret-router-test-s", "identity-test", 15, nil),
		Logger:     zap.NewNop(),
	}
	accounts := service.NewAccountService(deps)
	authService := service.NewAuthService(deps)
	passwords := service.NewPasswordService(deps)

	bus := &capturingBus{}
	dispatcher := events.NewDispatcher()
	worker.RegisterEventHandlers(dispatcher, service.NewSessionRevoker(zap.NewNop()), service.NewNotificationService(bus, zap.NewNop()))

	metrics := observability.NewMetrics()
	app := fiber.New()
	apihttp.RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	apihttp.RegisterRoutes(app, apihttp.RouteConfig{
		Health:         handlers.NewHealthHandler("identity-service", "test", nil, nil, metrics),
		Accounts:       handlers.NewAccountsHandler(accounts),
		Auth:           handlers.NewAuthHandler(authService),
		Passwords:      handlers.NewPasswordHandler(passwords),
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})

	return &testServer{
		app:     app,
		bus:     bus,
		metrics: metrics,
		relay: worker.NewOutboxRelay(worker.RelayDependencies{
			UnitOfWork: factory,
			Codec:      codec,
			Dispatcher: dispatcher,
		}),
	}
}

type envelope struct {
	Data  map[string]any `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (s *testServer) drain(t *testing.T) {
	t.Helper()
	_, err := s.relay.RunOnce(context.Background())
	require.NoError(t, err)
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/accounts", "", map[string]any{
		"email": email, "phone": "+15551234567", "password": "s3cret!",
	})
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	return env.Data["account_id"].(string)
}

func (s *testServer) confirm(t *testing.T, accountID string) {
	t.Helper()
	s.drain(t)
	status, env := s.do(t, http.MethodPost, "/accounts/"+accountID+"/confirm", "", map[string]any{
		"token": s.bus.confirmationToken(t, accountID),
	})
	require.Equal(t, http.StatusNoContent, status, env.Error.Message)
}

func (s *testServer) login(t *testing.T, email string) map[string]any {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": "s3cret!"})
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	return env.Data
}

func TestRegisterConfirmLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	id := s.register(t, "jane@example.com")

	status, env := s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "jane@example.com", "password": "s3cret!"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	s.confirm(t, id)
	tokens := s.login(t, "jane@example.com")
	assert.Equal(t, "Bearer", tokens["token_type"])

	status, env = s.do(t, http.MethodGet, "/accounts/me", tokens["access_token"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, env.Data["id"])
	assert.Equal(t, "jane@example.com", env.Data["email"])
	assert.Equal(t, "customer", env.Data["role"])
	assert.Equal(t, "confirmed", env.Data["status"])
}

func TestRegisterRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "jane@example.com")

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing fields", map[string]any{"email": "a@example.com"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"short password", map[string]any{"email": "b@example.com", "phone": "+15551234567", "password": "123"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"malformed email", map[string]any{"email": "nope", "phone": "+15551234567", "password": "s3cret!"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"duplicate", map[string]any{"email": "JANE@example.com", "phone": "+15551234567", "password": "s3cret!"}, http.StatusConflict, "CONFLICT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, http.MethodPost, "/accounts", "", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestConfirmWithWrongToken(t *testing.T) {
	s := newTestServer(t)
	id := s.register(t, "jane@example.com")

	status, env := s.do(t, http.MethodPost, "/accounts/"+id+"/confirm", "", map[string]any{"token": "wrong"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "RULE_VIOLATION", env.Error.Code)

	status, env = s.do(t, http.MethodPost, "/accounts/not-a-uuid/confirm", "", map[string]any{"token": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestRefreshRotatesTokens(t *testing.T) {
	s := newTestServer(t)
	s.confirm(t, s.register(t, "jane@example.com"))
	first := s.login(t, "jane@example.com")

	status, env := s.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": first["refresh_token"]})
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	assert.NotEqual(t, first["refresh_token"], env.Data["refresh_token"])

	status, env = s.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": first["refresh_token"]})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestProtectedRoutes(t *testing.T) {
	s := newTestServer(t)
	id := s.register(t, "jane@example.com")
	s.confirm(t, id)
	access := s.login(t, "jane@example.com")["access_token"].(string)

	status, env := s.do(t, http.MethodGet, "/accounts/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = s.do(t, http.MethodGet, "/accounts/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodGet, "/accounts/"+id, access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = s.do(t, http.MethodPost, "/staff/accounts", access, map[string]any{
		"role_id": int(domain.RoleAdmin), "email": "root@example.com", "phone": "+15551234567", "password": "s3cret!",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestPasswordRecoveryFlow(t *testing.T) {
	s := newTestServer(t)
	s.confirm(t, s.register(t, "jane@example.com"))
	before := s.login(t, "jane@example.com")

	status, env := s.do(t, http.MethodPost, "/password/recover", "", map[string]any{"email": "jane@example.com"})
	require.Equal(t, http.StatusAccepted, status, env.Error.Message)
	tokenID := env.Data["recover_token_id"].(string)
	s.drain(t)

	secret := s.bus.recoverToken(t)

	update := map[string]any{
		"email": "jane@example.com", "recover_token_id": tokenID, "recover_token": secret, "new_password": "n3w-pass",
	}
	status, env = s.do(t, http.MethodPost, "/password/update", "", update)
	require.Equal(t, http.StatusNoContent, status, env.Error.Message)

	status, _ = s.do(t, http.MethodPost, "/password/update", "", update)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	s.drain(t)
	status, _ = s.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": before["refresh_token"]})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "jane@example.com", "password": "n3w-pass"})
	assert.Equal(t, http.StatusOK, status)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, env := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, s.metrics.Snapshot().Requests)
}
