// Package ratelimit implements fixed-window request quotas.
//
// Windows are aligned buckets keyed by floor(now/window). A client that
// spends its quota at the end of one bucket can spend it again at the start
// of the next, so up to twice the limit may pass across a boundary.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/promotrack/promotrack/internal/cache"
)

// keyPrefix is the cache key prefix for fixed-window counters.
const keyPrefix = "rate_limit:"

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter enforces fixed-window quotas on top of a cache.Store.
type Limiter struct {
	store cache.Store
	now   func() time.Time
}

// New creates a Limiter.
func New(store cache.Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock replaces the limiter clock.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Key returns the bucket key for identifier at time now.
func Key(identifier string, window time.Duration, now time.Time) string {
	secs := int64(window.Seconds())
	if secs <= 0 {
		secs = 1
	}
	bucket := now.Unix() / secs
	return keyPrefix + identifier + ":" + strconv.FormatInt(bucket, 10)
}

// Allow counts one request for identifier against limit in the current bucket.
func (l *Limiter) Allow(ctx context.Context, identifier string, limit int64, window time.Duration) (Result, error) {
	now := l.now()
	secs := int64(window.Seconds())
	if secs <= 0 {
		secs = 1
	}
	resetAt := time.Unix((now.Unix()/secs+1)*secs, 0)

	res := Result{Limit: limit, ResetAt: resetAt}

	count, allowed, err := l.store.CheckAndIncr(ctx, Key(identifier, window, now), limit, time.Duration(secs)*time.Second)
	if err != nil {
		return res, fmt.Errorf("check rate window %s: %w", identifier, err)
	}

	res.Allowed = allowed
	if allowed {
		res.Remaining = limit - count
		return res, nil
	}

	res.RetryAfter = resetAt.Sub(now)
	if res.RetryAfter < time.Second {
		res.RetryAfter = time.Second
	}
	return res, nil
}
