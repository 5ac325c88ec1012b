// Package auth provides password hashing and the portal session tokens that
// guard the admin pages.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
)

// ContextKey is a custom type for context keys to prevent collisions.
type ContextKey string

// SessionContextKey is the context key for the validated session claims.
const SessionContextKey ContextKey = "session_claims"

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(constants.HeaderAuthorization)
	if !strings.HasPrefix(header, constants.BearerTokenPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, constants.BearerTokenPrefix))
	return token, token != ""
}

// RequireSession rejects requests without a valid session token and stores
// the claims in the request context for the next handler.
func RequireSession(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				utils.Unauthorized(w, constants.MsgAuthRequired)
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Session validation failed")

				var appErr *utils.AppError
				if errors.As(err, &appErr) {
					utils.ErrorFromAppError(w, appErr)
				} else {
					utils.Unauthorized(w, constants.MsgSessionInvalid)
				}
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session claims stored by RequireSession.
func GetSession(r *http.Request) (*SessionClaims, bool) {
	claims, ok := r.Context().Value(SessionContextKey).(*SessionClaims)
	return claims, ok
}
