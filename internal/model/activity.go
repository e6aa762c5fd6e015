package model

import "time"

// Suspicious activity types.
const (
	ActivityRapidClicking      = "rapid_clicking"
	ActivityBotDetected        = "bot_detected"
	ActivitySuspiciousReferrer = "suspicious_referrer"
	ActivityHoneypot           = "honeypot_triggered"
)

// SuspiciousActivity is one entry of the hourly suspicious-activity ring buffer.
type SuspiciousActivity struct {
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	IP            string    `json:"ip"`
	PromotionCode string    `json:"promotion_code,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// AuditEntry records one access-control decision.
type AuditEntry struct {
	UserID    string    `json:"user_id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RateWindow describes one fixed-window counter bucket.
type RateWindow struct {
	Key           string    `json:"key"`
	WindowStart   time.Time `json:"window_start"`
	Count         int64     `json:"count"`
	Limit         int64     `json:"limit"`
	WindowSeconds int64     `json:"window_seconds"`
}

// HourBucketLayout is the time layout of hourly cache key suffixes.
const HourBucketLayout = "2006010215"

// HourBucket formats the hour-bucket suffix used by hourly cache keys.
func HourBucket(t time.Time) string {
	return t.UTC().Format(HourBucketLayout)
}
