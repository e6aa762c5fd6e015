package ratelimit

import (
	"context"
	"time"
)

// TrackingQuota configures the click-tracking limiter.
type TrackingQuota struct {
	PerCode       int64
	PerCodeWindow time.Duration
	PerIP         int64
	PerIPWindow   time.Duration
}

// DefaultTrackingQuota returns 20 clicks per minute per (ip, code)
// and 50 clicks per hour per ip.
func DefaultTrackingQuota() TrackingQuota {
	return TrackingQuota{
		PerCode:       20,
		PerCodeWindow: time.Minute,
		PerIP:         50,
		PerIPWindow:   time.Hour,
	}
}

// TrackingLimiter guards the tracking endpoints independently of the
// generic request limiter.
type TrackingLimiter struct {
	limiter *Limiter
	quota   TrackingQuota
}

// NewTrackingLimiter creates a tracking limiter.
func NewTrackingLimiter(limiter *Limiter, quota TrackingQuota) *TrackingLimiter {
	return &TrackingLimiter{limiter: limiter, quota: quota}
}

// Allow checks the (ip, code) quota first, then the ip quota.
// The first rejecting result is returned.
func (t *TrackingLimiter) Allow(ctx context.Context, ip, code string) (Result, error) {
	res, err := t.limiter.Allow(ctx, "track:code:"+code+":ip:"+ip, t.quota.PerCode, t.quota.PerCodeWindow)
	if err != nil || !res.Allowed {
		return res, err
	}
	return t.limiter.Allow(ctx, "track:ip:"+ip, t.quota.PerIP, t.quota.PerIPWindow)
}
