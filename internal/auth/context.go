// Package auth resolves bearer tokens into request identities.
package auth

import (
	"context"

	"github.com/promotrack/promotrack/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the context key for storing the resolved Identity.
	identityContextKey contextKey = "identity"
)

// ContextWithIdentity adds the resolved identity to the context.
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity from the context.
// Returns nil if not present.
func IdentityFromContext(ctx context.Context) *model.Identity {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok {
		return nil
	}
	return identity
}

// MustIdentityFromContext retrieves the identity from the context.
// Panics if not present (use only when auth middleware has run).
func MustIdentityFromContext(ctx context.Context) *model.Identity {
	identity := IdentityFromContext(ctx)
	if identity == nil {
		panic("identity not found - ensure auth middleware is applied")
	}
	return identity
}

// UserIDFromContext is a convenience function to get user ID from context.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	identity := IdentityFromContext(ctx)
	if identity == nil {
		return ""
	}
	return identity.UserID
}
