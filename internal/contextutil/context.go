package contextutil

import (
	"context"

	"portalgate/internal/auth"
)

// Key is a type-safe key for context values
type Key string

const (
	// ClaimsKey is the key for the decoded token claims
	ClaimsKey Key = "context:claims"

	// RequestIDKey is the key for the request ID
	RequestIDKey Key = "context:request_id"
)

// WithClaims adds decoded claims to a context
func WithClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaims retrieves decoded claims from a context
func GetClaims(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(auth.Claims)
	return claims, ok
}

// WithRequestID adds a request ID to a context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves a request ID from a context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
