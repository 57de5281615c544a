package dto

import (
	"github.com/spec-kit/identity-service/internal/domain"
)

// CreateAccountRequest payload for registration. RoleID is honored only on
// the staff route; public sign-ups are always customers.
type CreateAccountRequest struct {
	RoleID   int    `json:"role_id"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// CreateAccountResponse identifies the new account.
type CreateAccountResponse struct {
	AccountID string `json:"account_id"`
}

// ConfirmEmailRequest carries the secret from the confirmation email.
type ConfirmEmailRequest struct {
	Token string `json:"token"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID     string `json:"id"`
	RoleID int    `json:"role_id"`
	Role   string `json:"role"`
	Status string `json:"status"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

// NewAccountResponse renders account.
func NewAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		ID:     account.ID().String(),
		RoleID: account.Role().ID(),
		Role:   account.Role().String(),
		Status: account.Status().String(),
		Email:  account.Email(),
		Phone:  account.Phone(),
	}
}
