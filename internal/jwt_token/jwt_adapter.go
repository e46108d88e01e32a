package jwttoken

import (
	"dossier/internal/platform/middleware"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
)

// JWTServiceAdapter bridges the token service to the middleware's validator
// interface, converting the string claim into a typed actor id.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	actorID, err := id.ParseActorID(claims.ActorID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid actor claim")
	}
	return &middleware.JWTClaims{ActorID: actorID}, nil
}
