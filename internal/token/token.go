// Package token validates bearer tokens issued by the external authentication
// collaborator. Issuance, refresh, and session management all live outside
// this service; the workflow core only needs the owner identity.
package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"policydesk/internal/platform/middleware"
	dErrors "policydesk/pkg/domainerrors"
)

// Claims represents the JWT claims we expect on access tokens.
type Claims struct {
	OwnerID   string `json:"owner_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Validator parses and verifies access tokens with a shared HMAC key.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken verifies the signature and expiry and extracts the claims the
// middleware carries into request contexts.
func (v *Validator) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.Wrap(dErrors.CodeUnauthorized, "invalid token", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.OwnerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token missing owner identity")
	}

	return &middleware.TokenClaims{
		OwnerID:   claims.OwnerID,
		SessionID: claims.SessionID,
	}, nil
}
