package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/promotrack/promotrack/internal/model"
)

const (
	// identityKeyPrefix is the key prefix for resolved identity snapshots.
	identityKeyPrefix = "auth:identity:"
	// IdentityTTL is how long a resolved identity is reused.
	IdentityTTL = 5 * time.Minute
)

// IdentityCache caches role/permission snapshots by user id.
type IdentityCache struct {
	store Store
}

// NewIdentityCache creates an identity cache on top of store.
func NewIdentityCache(store Store) *IdentityCache {
	return &IdentityCache{store: store}
}

// Get retrieves a cached identity.
// Returns nil if not found (cache miss).
func (c *IdentityCache) Get(ctx context.Context, userID string) (*model.Identity, error) {
	data, err := c.store.Get(ctx, identityKeyPrefix+userID)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var identity model.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}
	return &identity, nil
}

// Set caches an identity for IdentityTTL.
func (c *IdentityCache) Set(ctx context.Context, identity *model.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return c.store.Set(ctx, identityKeyPrefix+identity.UserID, data, IdentityTTL)
}

// Delete removes a cached identity.
// Used when a user's roles change or the account is deactivated.
func (c *IdentityCache) Delete(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, identityKeyPrefix+userID)
}
