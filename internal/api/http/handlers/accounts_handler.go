package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/service"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// AccountsHandler exposes registration and account lookups.
type AccountsHandler struct {
	accounts *service.AccountService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(accounts *service.AccountService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// Register handles POST /accounts. Public sign-ups are always customers.
func (h *AccountsHandler) Register(c *fiber.Ctx) error {
	req, err := parseCreateAccount(c)
	if err != nil {
		return err
	}
	return h.create(c, domain.RoleCustomer, req)
}

// RegisterStaff handles POST /staff/accounts, which lets an admin or HR
// create an account with any role.
func (h *AccountsHandler) RegisterStaff(c *fiber.Ctx) error {
	req, err := parseCreateAccount(c)
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(req.RoleID)
	if err != nil {
		return apperrors.NewValidationError("invalid role", map[string]any{"role_id": req.RoleID})
	}
	return h.create(c, role, req)
}

func (h *AccountsHandler) create(c *fiber.Ctx, role domain.Role, req dto.CreateAccountRequest) error {
	result, err := h.accounts.CreateAccount(c.UserContext(), service.CreateAccountInput{
		Role:     role,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.CreateAccountResponse{AccountID: result.AccountID.String()},
	})
}

// Confirm handles POST /accounts/:id/confirm.
func (h *AccountsHandler) Confirm(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var req dto.ConfirmEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Token == "" {
		return apperrors.NewValidationError("token required", map[string]any{"token": "required"})
	}

	if err := h.accounts.ConfirmEmail(c.UserContext(), id, req.Token); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /accounts/me.
func (h *AccountsHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("missing principal")
	}
	return h.render(c, principal.AccountID)
}

// Get handles GET /accounts/:id for staff.
func (h *AccountsHandler) Get(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	return h.render(c, id)
}

func (h *AccountsHandler) render(c *fiber.Ctx, id uuid.UUID) error {
	account, err := h.accounts.GetAccount(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

func parseCreateAccount(c *fiber.Ctx) (dto.CreateAccountRequest, error) {
	var req dto.CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	missing := map[string]any{}
	if strings.TrimSpace(req.Email) == "" {
		missing["email"] = "required"
	}
	if strings.TrimSpace(req.Phone) == "" {
		missing["phone"] = "required"
	}
	if req.Password == "" {
		missing["password"] = "required"
	}
	if len(missing) > 0 {
		return req, apperrors.NewValidationError("email, phone, password required", missing)
	}
	return req, nil
}

func accountID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("invalid account id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}
