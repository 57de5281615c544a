package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Accounts       *handlers.AccountsHandler
	Auth           *handlers.AuthHandler
	Passwords      *handlers.PasswordHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	accounts := app.Group("/accounts")
	accounts.Post("/", cfg.Accounts.Register)
	accounts.Get("/me", cfg.AuthMiddleware.Require(), cfg.Accounts.Me)
	accounts.Get("/:id", cfg.AuthMiddleware.Require(auth.StaffRoles()...), cfg.Accounts.Get)
	accounts.Post("/:id/confirm", cfg.Accounts.Confirm)

	staff := app.Group("/staff", cfg.AuthMiddleware.Require(domain.RoleAdmin, domain.RoleHR))
	staff.Post("/accounts", cfg.Accounts.RegisterStaff)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)

	password := app.Group("/password")
	password.Post("/recover", cfg.Passwords.Recover)
	password.Post("/update", cfg.Passwords.Update)
}
