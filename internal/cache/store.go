package cache

import (
	"context"
	"errors"
	"time"
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Store is the key-value store behind every counter in the pipeline.
// Implementations must make each read-modify-write method atomic per key.
type Store interface {
	// CheckAndIncr increments the counter at key unless it already reached limit.
	// The TTL is set when the counter is created. The returned count is the
	// value after the call.
	CheckAndIncr(ctx context.Context, key string, limit int64, ttl time.Duration) (count int64, allowed bool, err error)

	// RecordHit keeps a trailing-window log of hit timestamps at key. Entries
	// older than now-window are pruned first; when the remaining count is
	// already at limit the hit is rejected and not appended.
	RecordHit(ctx context.Context, key string, now time.Time, window, ttl time.Duration, limit int64) (recent int64, allowed bool, err error)

	// TrackReferrer updates the referrer statistics hash at key.
	TrackReferrer(ctx context.Context, key, referrer string, ttl time.Duration) (ReferrerStats, error)

	// PushCapped prepends value to the list at key and trims it to max entries.
	PushCapped(ctx context.Context, key string, value []byte, max int64, ttl time.Duration) error

	// ListRecent returns up to n entries from the list at key, newest first.
	ListRecent(ctx context.Context, key string, n int64) ([][]byte, error)

	// Get returns ErrCacheMiss when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// ReferrerStats are the rolling referrer counters kept per promotion code.
// SameReferrerCount is a streak that resets when the referrer changes.
type ReferrerStats struct {
	SameReferrerCount  int64
	EmptyReferrerCount int64
	LastReferrer       string
	TotalClicks        int64
}
