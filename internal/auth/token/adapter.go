package token

import (
	authmw "unionregistry/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes session tokens to the auth middleware.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.Parse(tokenString, PurposeSession)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{
		Username: claims.Subject,
		Role:     claims.Role,
		DealerID: claims.DealerID,
	}, nil
}
