package middleware

import (
	"net/http"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/auth"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// ServiceKeyAuth guards internal endpoints (billing event intake) with
// the shared service key, compared against its bcrypt hash.
func ServiceKeyAuth(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Service-Key")
			if key == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing service key")
				return
			}
			if err := auth.VerifyServiceKey(key, keyHash); err != nil {
				utils.RespondWithError(w, http.StatusForbidden, "Invalid service key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
