package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/model"
)

// ErrUserNotFound is returned by an IdentityStore for unknown users.
var ErrUserNotFound = errors.New("user not found")

// IdentityStore loads role/permission snapshots. UserActive is the cheap
// status lookup run on every cache hit.
type IdentityStore interface {
	GetIdentity(ctx context.Context, userID string) (*model.Identity, error)
	UserActive(ctx context.Context, userID string) (bool, error)
}

// Resolver turns a bearer token into an Identity.
type Resolver struct {
	tokens *TokenManager
	store  IdentityStore
	cache  *cache.IdentityCache
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil cache disables identity caching.
func NewResolver(tokens *TokenManager, store IdentityStore, identityCache *cache.IdentityCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		tokens: tokens,
		store:  store,
		cache:  identityCache,
		logger: logger.With("component", "identity"),
	}
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" value.
func ExtractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Resolve validates the token and loads the identity. Token and account
// problems are Unauthenticated errors; store failures are Internal.
func (r *Resolver) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, apperror.Unauthenticated("missing_token", "Authentication required")
	}

	userID, err := r.tokens.Parse(token)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid_token", "Invalid or expired token")
	}

	identity, err := r.load(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperror.Unauthenticated("unknown_user", "Invalid or expired token")
		}
		return nil, apperror.Internal(err)
	}

	if !identity.IsActive {
		return nil, apperror.Unauthenticated("inactive_user", "Account is inactive")
	}
	return identity, nil
}

// load serves the cached snapshot only while the account status still
// matches the store. A status change drops the entry and reloads, so a
// deactivated user is rejected on the next request; role changes are picked
// up within cache.IdentityTTL.
func (r *Resolver) load(ctx context.Context, userID string) (*model.Identity, error) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, userID)
		if err != nil {
			r.logger.Warn("identity cache read failed", slog.String("error", err.Error()))
		}
		if cached != nil {
			active, err := r.store.UserActive(ctx, userID)
			if err != nil && !errors.Is(err, ErrUserNotFound) {
				return nil, err
			}
			if err == nil && active == cached.IsActive {
				return cached, nil
			}
			if err := r.Invalidate(ctx, userID); err != nil {
				r.logger.Warn("identity cache invalidate failed", slog.String("error", err.Error()))
			}
		}
	}

	identity, err := r.store.GetIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, identity); err != nil {
			r.logger.Warn("identity cache write failed", slog.String("error", err.Error()))
		}
	}
	return identity, nil
}

// Invalidate drops a cached identity after role or status changes.
func (r *Resolver) Invalidate(ctx context.Context, userID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, userID)
}
