// Package model defines domain entities for the application.
package model

import (
	"net/url"
	"time"
)

// PromotionStatus represents the lifecycle status of a promotion.
type PromotionStatus string

const (
	PromotionStatusActive  PromotionStatus = "active"
	PromotionStatusPaused  PromotionStatus = "paused"
	PromotionStatusExpired PromotionStatus = "expired"
)

// Promotion is one user's referral link for a registered game server.
type Promotion struct {
	ID               string          `json:"id"`
	ServerID         string          `json:"server_id"`
	UserID           string          `json:"user_id"` // Owner
	Code             string          `json:"code"`
	Status           PromotionStatus `json:"status"`
	TargetURL        string          `json:"target_url,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	ClickCount       int64           `json:"click_count"`
	UniqueClickCount int64           `json:"unique_click_count"`
	ConversionCount  int64           `json:"conversion_count"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Server landing page, joined in on lookup.
	ServerWebsite string `json:"server_website,omitempty"`
}

// IsExpired returns true if the promotion has a time-based expiry in the past.
func (p *Promotion) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// IsTrackable reports whether clicks may be recorded for the promotion.
func (p *Promotion) IsTrackable(now time.Time) bool {
	return p.Status == PromotionStatusActive && !p.IsExpired(now)
}

// Destination returns the landing URL a tracked click is redirected to.
// The promotion code is appended as the ref query parameter.
func (p *Promotion) Destination() string {
	target := p.TargetURL
	if target == "" {
		target = p.ServerWebsite
	}
	if target == "" {
		return ""
	}

	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	if q.Get("ref") == "" {
		q.Set("ref", p.Code)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Server represents a registered game server.
type Server struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Website   string    `json:"website,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PromotionStats is the counter snapshot returned by the stats endpoint.
type PromotionStats struct {
	PromotionID      string  `json:"promotion_id"`
	Code             string  `json:"code"`
	ClickCount       int64   `json:"click_count"`
	UniqueClickCount int64   `json:"unique_click_count"`
	ConversionCount  int64   `json:"conversion_count"`
	ConversionRate   float64 `json:"conversion_rate"`
}

// Stats computes the counter snapshot for the promotion.
func (p *Promotion) Stats() PromotionStats {
	var rate float64
	if p.UniqueClickCount > 0 {
		rate = float64(p.ConversionCount) / float64(p.UniqueClickCount)
	}
	return PromotionStats{
		PromotionID:      p.ID,
		Code:             p.Code,
		ClickCount:       p.ClickCount,
		UniqueClickCount: p.UniqueClickCount,
		ConversionCount:  p.ConversionCount,
		ConversionRate:   rate,
	}
}
