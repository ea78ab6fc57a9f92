package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TriggerSecret gates the internal trigger endpoints behind a shared secret.
// The secret is taken from the Authorization bearer token or the
// X-Trigger-Secret header.
func TriggerSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "trigger secret not configured", http.StatusServiceUnavailable)
				return
			}
			provided := r.Header.Get("X-Trigger-Secret")
			if provided == "" {
				auth := r.Header.Get("Authorization")
				provided = strings.TrimPrefix(auth, "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
