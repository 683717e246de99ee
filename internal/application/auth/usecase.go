package auth

import (
	"strings"
	"time"

	"github.com/jhoicas/merma-api/internal/application/dto"
	"github.com/jhoicas/merma-api/pkg/jwt"
)

// JWTConfig configuración para generación de tokens.
type JWTConfig struct {
	Secret     string
	ExpMinutes int
	Issuer     string
}

// AuthUseCase emite tokens de acceso. No hay usuarios persistidos: el token lleva el rol.
type AuthUseCase struct {
	jwtCfg JWTConfig
	now    func() time.Time
}

// NewAuthUseCase construye el caso de uso de auth.
func NewAuthUseCase(jwtCfg JWTConfig) *AuthUseCase {
	return &AuthUseCase{jwtCfg: jwtCfg, now: time.Now}
}

// IssueToken genera un JWT para userID con el rol pedido.
func (uc *AuthUseCase) IssueToken(in dto.TokenRequest) (*dto.TokenResponse, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	userID := in.UserID
	expires := uc.now().Add(time.Duration(uc.jwtCfg.ExpMinutes) * time.Minute)
	token, err := jwt.Generate(uc.jwtCfg.Secret, userID, in.Role, uc.jwtCfg.Issuer, uc.jwtCfg.ExpMinutes)
	if err != nil {
		return nil, err
	}
	return &dto.TokenResponse{Token: token, UserID: userID, Role: in.Role, ExpiresAt: expires.UTC()}, nil
}
