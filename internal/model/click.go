package model

import "time"

// UniqueLookback is how far back a prior click from the same visitor
// makes a new click non-unique.
const UniqueLookback = 24 * time.Hour

// DeviceType classifies the client that produced a click.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceBot     DeviceType = "bot"
	DeviceUnknown DeviceType = "unknown"
)

// Click is one visit to a tracking URL for a promotion.
type Click struct {
	ID          string            `json:"id"` // ULID (time-sortable)
	PromotionID string            `json:"promotion_id"`
	ServerID    string            `json:"server_id"`
	VisitorIP   string            `json:"visitor_ip"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	ReferrerURL string            `json:"referrer_url,omitempty"`
	UTMParams   map[string]string `json:"utm_params,omitempty"`
	DeviceType  DeviceType        `json:"device_type"`
	CountryCode string            `json:"country_code,omitempty"`

	// Referrer anomaly flag. Recorded for downstream reward review, never blocking.
	IsSuspectedFraud bool `json:"is_suspected_fraud"`

	// Set at insert time and never changed afterwards.
	IsUnique bool `json:"is_unique"`

	IsConverted     bool       `json:"is_converted"`
	ConvertedUserID string     `json:"converted_user_id,omitempty"`
	ConvertedAt     *time.Time `json:"converted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// DedupKey returns the visitor key used for uniqueness checks:
// the fingerprint when present, otherwise the IP.
func (c *Click) DedupKey() string {
	if c.Fingerprint != "" {
		return c.Fingerprint
	}
	return c.VisitorIP
}

// ClientIdentity is derived from request signals on every request.
// It is never persisted by the pipeline itself.
type ClientIdentity struct {
	IP          string
	UserAgent   string
	Fingerprint string
}

// Geolocation is best-effort location data for a visitor IP.
type Geolocation struct {
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city,omitempty"`
	ISP         string `json:"isp,omitempty"`
}

// TrackingContext is the fraud screening result handed to click recording.
type TrackingContext struct {
	RealIP           string
	PromotionCode    string
	Geolocation      *Geolocation
	Fingerprint      string
	IsSuspectedFraud bool
	Signals          []string
}
