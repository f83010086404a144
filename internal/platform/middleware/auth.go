package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator defines the interface for validating bearer tokens issued by
// the external authentication collaborator.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims represents the claims the workflow core needs from a token.
type TokenClaims struct {
	OwnerID   string
	SessionID string
}

type contextKeyOwnerID struct{}
type contextKeySessionID struct{}

var (
	ContextKeyOwnerID   = contextKeyOwnerID{}
	ContextKeySessionID = contextKeySessionID{}
)

// GetOwnerID retrieves the authenticated account ID from the context.
func GetOwnerID(ctx context.Context) string {
	ownerID, ok := ctx.Value(ContextKeyOwnerID).(string)
	if !ok {
		return ""
	}
	return ownerID
}

// GetSessionID retrieves the session ID from the context.
func GetSessionID(ctx context.Context) string {
	sessionID, ok := ctx.Value(ContextKeySessionID).(string)
	if !ok {
		return ""
	}
	return sessionID
}

// RequireAuth rejects requests without a valid bearer token and stores the
// owner identity in the request context. Token issuance lives outside this
// service; only validation happens here.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyOwnerID, claims.OwnerID)
			ctx = context.WithValue(ctx, ContextKeySessionID, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
