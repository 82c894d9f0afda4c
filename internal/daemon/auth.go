package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const unauthorizedBody = `{"error":"unauthorized"}`

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r, token) {
			http.Error(w, unauthorizedBody, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// secretMiddleware guards the worker trigger. Unlike authMiddleware an empty
// secret disables the endpoint rather than opening it.
func secretMiddleware(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			http.Error(w, `{"error":"worker trigger is not configured"}`, http.StatusForbidden)
			return
		}
		if !bearerMatches(r, secret) {
			http.Error(w, unauthorizedBody, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerMatches(r *http.Request, want string) bool {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	got := strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
