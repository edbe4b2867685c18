package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/auth"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// ContextKey is the type for request context keys to avoid collisions.
type ContextKey string

// UserIDKey is the context key holding the authenticated user id.
const UserIDKey ContextKey = "userID"

// UserAuth validates the bearer session token and injects the user id
// into the request context.
func UserAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}

			userID, err := auth.ValidateSessionToken(strings.TrimPrefix(authHeader, "Bearer "), secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid session token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the authenticated user id from the context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}
