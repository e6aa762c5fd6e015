package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/promotrack/promotrack/internal/model"
)

// Cache key prefixes and TTLs.
const (
	promotionKeyPrefix = "promotion:"
	negCacheKeySuffix  = ":neg"

	// DefaultPromotionTTL is the TTL for cached promotion lookups.
	DefaultPromotionTTL = 5 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute
)

// cachedPromotion holds the lookup fields of a promotion. Counters are
// never cached since every click changes them.
type cachedPromotion struct {
	ID            string                `json:"id"`
	ServerID      string                `json:"server_id"`
	UserID        string                `json:"user_id"`
	Code          string                `json:"code"`
	Status        model.PromotionStatus `json:"status"`
	TargetURL     string                `json:"target_url,omitempty"`
	ServerWebsite string                `json:"server_website,omitempty"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
}

// PromotionCache is a read-through cache for promotion code lookups.
type PromotionCache struct {
	store Store
}

// NewPromotionCache creates a promotion cache on top of store.
func NewPromotionCache(store Store) *PromotionCache {
	return &PromotionCache{store: store}
}

// Get retrieves a promotion by code.
// Returns ErrCacheMiss if not found.
func (c *PromotionCache) Get(ctx context.Context, code string) (*model.Promotion, error) {
	data, err := c.store.Get(ctx, promotionKeyPrefix+code)
	if err != nil {
		return nil, err
	}

	var cached cachedPromotion
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, ErrCacheMiss
	}

	return &model.Promotion{
		ID:            cached.ID,
		ServerID:      cached.ServerID,
		UserID:        cached.UserID,
		Code:          cached.Code,
		Status:        cached.Status,
		TargetURL:     cached.TargetURL,
		ServerWebsite: cached.ServerWebsite,
		ExpiresAt:     cached.ExpiresAt,
	}, nil
}

// Set stores a promotion. The TTL never outlives the promotion's expiry.
func (c *PromotionCache) Set(ctx context.Context, p *model.Promotion) error {
	key := promotionKeyPrefix + p.Code

	ttl := DefaultPromotionTTL
	if p.ExpiresAt != nil {
		expiresIn := time.Until(*p.ExpiresAt)
		if expiresIn <= 0 {
			return c.Delete(ctx, p.Code)
		}
		if expiresIn < ttl {
			ttl = expiresIn
		}
	}

	data, err := json.Marshal(cachedPromotion{
		ID:            p.ID,
		ServerID:      p.ServerID,
		UserID:        p.UserID,
		Code:          p.Code,
		Status:        p.Status,
		TargetURL:     p.TargetURL,
		ServerWebsite: p.ServerWebsite,
		ExpiresAt:     p.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal promotion: %w", err)
	}

	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("failed to cache promotion: %w", err)
	}

	// Remove negative cache if exists
	_ = c.store.Delete(ctx, key+negCacheKeySuffix)
	return nil
}

// Delete removes a promotion and its negative entry from cache.
func (c *PromotionCache) Delete(ctx context.Context, code string) error {
	key := promotionKeyPrefix + code
	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	return c.store.Delete(ctx, key+negCacheKeySuffix)
}

// IsNegativelyCached checks if a code is in negative cache.
func (c *PromotionCache) IsNegativelyCached(ctx context.Context, code string) (bool, error) {
	_, err := c.store.Get(ctx, promotionKeyPrefix+code+negCacheKeySuffix)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return true, nil
}

// SetNegativeCache marks a code as not found.
func (c *PromotionCache) SetNegativeCache(ctx context.Context, code string) error {
	if err := c.store.Set(ctx, promotionKeyPrefix+code+negCacheKeySuffix, []byte{}, NegativeCacheTTL); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
