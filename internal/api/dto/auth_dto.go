package dto

import "time"

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest payload for token rotation.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse standard response for auth endpoints.
type TokenResponse struct {
	TokenType             string    `json:"token_type"`
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// RecoverPasswordRequest payload for starting a password recovery.
type RecoverPasswordRequest struct {
	Email string `json:"email"`
}

// RecoverPasswordResponse identifies the issued recover token. The secret is
// sent by email only.
type RecoverPasswordResponse struct {
	RecoverTokenID string    `json:"recover_token_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// UpdatePasswordRequest payload for applying a recover token.
type UpdatePasswordRequest struct {
	Email          string `json:"email"`
	RecoverTokenID string `json:"recover_token_id"`
	RecoverToken   string `json:"recover_token"`
	NewPassword    string `json:"new_password"`
}
