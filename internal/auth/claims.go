package auth

import "context"

type contextKey struct{}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext returns the claims attached by Middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}

// CanRead reports whether claims may read the practice data of userID: the
// token's own subject with practice:read, or any holder of practice:admin.
func CanRead(claims *Claims, userID string) bool {
	if claims.HasScope(ScopePracticeAdmin) {
		return true
	}
	return claims.HasScope(ScopePracticeRead) && claims.Subject == userID
}

// CanWrite is CanRead for preference updates.
func CanWrite(claims *Claims, userID string) bool {
	if claims.HasScope(ScopePracticeAdmin) {
		return true
	}
	return claims.HasScope(ScopePracticeWrite) && claims.Subject == userID
}
