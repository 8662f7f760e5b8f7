package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/linesmerrill/laundry-api/identity"
)

// TokenVerifier checks a bearer token and returns its claims
type TokenVerifier interface {
	Verify(token string) (*identity.AccessClaims, error)
}

// MiddlewareAuth holds what the bearer middleware needs to check a request
type MiddlewareAuth struct {
	Verifier TokenVerifier
}

// Middleware rejects requests without a valid bearer token and stores the
// token subject on the request context for the handlers behind it.
func (m MiddlewareAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w)
			return
		}

		claims, err := m.Verifier.Verify(token)
		if err != nil || claims.Subject == "" {
			zap.S().Debugw("rejected bearer token",
				"requestId", RequestIDFromContext(r.Context()),
				"path", r.URL.Path,
				"error", err)
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success": false, "error": "unauthorized", "code": "UNAUTHORIZED"}`))
}
