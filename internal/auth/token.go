package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the HS256 verification parameters issued by the identity service.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the verified caller: the user the token was issued to and its scopes.
type Claims struct {
	Subject string
	Scopes  []string
}

// HasScope reports whether the token carries scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps signature, issuer, expiry and subject failures.
	ErrInvalidToken = errors.New("invalid bearer token")
)

type tokenClaims struct {
	Scopes scopeList `json:"scopes"`
	jwt.RegisteredClaims
}

// scopeList accepts both a space-delimited string and a JSON array.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = slices.DeleteFunc(list, func(v string) bool { return strings.TrimSpace(v) == "" })
	return nil
}

// Parse verifies token and returns its claims. Issuer, expiry and subject are required.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Claims{Subject: tc.Subject, Scopes: tc.Scopes}, nil
}
