package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/service"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// PasswordHandler exposes password recovery.
type PasswordHandler struct {
	passwords *service.PasswordService
}

// NewPasswordHandler constructs handler.
func NewPasswordHandler(passwords *service.PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

// Recover handles POST /password/recover.
func (h *PasswordHandler) Recover(c *fiber.Ctx) error {
	var req dto.RecoverPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	result, err := h.passwords.RecoverPassword(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"data": dto.RecoverPasswordResponse{
			RecoverTokenID: result.RecoverTokenID.String(),
			ExpiresAt:      result.ExpiresAt,
		},
	})
}

// Update handles POST /password/update.
func (h *PasswordHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdatePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.RecoverToken == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("email, recover_token, new_password required", nil)
	}
	tokenID, err := uuid.Parse(req.RecoverTokenID)
	if err != nil {
		return apperrors.NewValidationError("invalid recover_token_id", map[string]any{"recover_token_id": req.RecoverTokenID})
	}

	if err := h.passwords.UpdatePassword(c.UserContext(), service.UpdatePasswordInput{
		Email:          req.Email,
		RecoverTokenID: tokenID,
		RecoverToken:   req.RecoverToken,
		NewPassword:    req.NewPassword,
	}); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
