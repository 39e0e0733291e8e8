package middleware

import (
	"encoding/json"
	"net/http"
)

// TokenSource reports the bearer token of the current session.
type TokenSource interface {
	AccessToken() string
}

// RequireSession rejects requests while nobody is signed in. The Job Service
// stays the authority on whether the token is accepted.
func RequireSession(tokens TokenSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil || tokens.AccessToken() == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "sign in required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
