// ABOUTME: HTTP middleware requiring a bearer token on API routes
// ABOUTME: Rejected requests get a JSON error body with kind "unauthorized"

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// extractBearerToken pulls the token out of an Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware rejects requests without a valid bearer token. A nil verifier
// disables authentication and passes every request through.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := extractBearerToken(r.Header.Get("Authorization"))
			if msg != "" {
				unauthorized(w, msg)
				return
			}
			subject, err := verifier.Verify(token)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="engine-bridge"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": "unauthorized"})
}
