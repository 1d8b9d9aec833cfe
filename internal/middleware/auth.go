// Package middleware contains HTTP middleware: request logging, Prometheus
// metrics, rate limiting and token authentication.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// TokenVerifier resolves a bearer token to an account id. The production
// deployment plugs in the identity provider's verifier; development uses
// UUIDVerifier.
type TokenVerifier func(token string) (uuid.UUID, error)

// UUIDVerifier accepts the account id itself as the token. Development only.
func UUIDVerifier(token string) (uuid.UUID, error) {
	return uuid.Parse(token)
}

// AccountID returns the authenticated account id from the request context.
func AccountID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(accountIDKey).(uuid.UUID)
	return id, ok
}

// RequireAccount returns middleware rejecting requests without a valid
// bearer token and storing the resolved account id in the context.
func RequireAccount(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}

			accountID, err := verify(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "unauthorized",
			"message": "a valid bearer token is required",
		},
	})
}
