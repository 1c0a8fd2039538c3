package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Middleware rejects requests without a valid bearer token and attaches the
// claims to the request context. Health, metrics and the scheduler trigger
// (which carries its own shared secret) are exempt.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := Parse(bearerToken(r), cfg)
			if err != nil {
				detail := ErrInvalidToken.Error()
				if errors.Is(err, ErrMissingToken) {
					detail = ErrMissingToken.Error()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": detail})
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func exempt(path string) bool {
	switch path {
	case "/healthz", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/v1/notifications/run")
}

// bearerToken returns "" when the header is absent and the raw header when the
// scheme is wrong, so Parse reports missing and invalid tokens respectively.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return header
	}
	return token
}
