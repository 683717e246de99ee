package dto

import "time"

// TokenRequest entrada para emitir un token de servicio.
type TokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=admin analyst operator"`
}

// TokenResponse token JWT emitido.
type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}
