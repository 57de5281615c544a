package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal is the caller resolved from a verified access token and the
// account's current stored state.
type Principal struct {
	AccountID uuid.UUID
	Role      domain.Role
	Status    domain.Status
	Email     string
}

// Authorizer resolves a bearer token into a principal.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string, allowed ...domain.Role) (Principal, error)
}

// AuthMiddleware validates bearer tokens on protected routes.
type AuthMiddleware struct {
	authorizer Authorizer
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(authorizer Authorizer) *AuthMiddleware {
	return &AuthMiddleware{authorizer: authorizer}
}

// Require authenticates the caller and, when roles are given, requires one of
// them. Authorization errors are returned untouched for the error handler to map.
func (m *AuthMiddleware) Require(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return err
		}

		principal, err := m.authorizer.Authorize(c.UserContext(), token, roles...)
		if err != nil {
			return err
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (Principal, bool) {
	principal, ok := c.Locals(principalKey).(Principal)
	return principal, ok
}
