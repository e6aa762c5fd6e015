// Package fraud screens promotion clicks for automated or abusive traffic.
package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/model"
)

// Cache key prefixes.
const (
	clicksKeyPrefix     = "fraud:clicks:"
	referrerKeyPrefix   = "fraud:referrer:"
	suspiciousKeyPrefix = "fraud:suspicious:"
)

// HoneypotFields are hidden form fields a human never fills in.
var HoneypotFields = []string{
	"website_url",
	"email_confirm",
	"phone_number_confirm",
	"hp_field",
	"leave_blank",
}

// Config holds heuristic thresholds.
type Config struct {
	RapidClickLimit        int64
	RapidClickWindow       time.Duration
	RapidClickTTL          time.Duration
	SameReferrerThreshold  int64
	EmptyReferrerThreshold int64
	ReferrerTTL            time.Duration
	SuspiciousLogMax       int64
	SuspiciousLogTTL       time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		RapidClickLimit:        10,
		RapidClickWindow:       time.Minute,
		RapidClickTTL:          5 * time.Minute,
		SameReferrerThreshold:  20,
		EmptyReferrerThreshold: 30,
		ReferrerTTL:            time.Hour,
		SuspiciousLogMax:       1000,
		SuspiciousLogTTL:       48 * time.Hour,
	}
}

// ScreenInput carries the request signals the heuristics look at.
type ScreenInput struct {
	Client   model.ClientIdentity
	Code     string
	Referrer string
	Header   http.Header
	// Form is the parsed POST body, nil for other methods.
	Form url.Values
}

// Engine runs the click heuristics in a fixed order.
type Engine struct {
	store   cache.Store
	geo     Geolocator
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewEngine creates a fraud engine. A nil geolocator disables lookups.
func NewEngine(store cache.Store, geo Geolocator, cfg Config, logger *slog.Logger, recorder metrics.Recorder) *Engine {
	if geo == nil {
		geo = NoopGeolocator{}
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Engine{
		store:   store,
		geo:     geo,
		cfg:     cfg,
		logger:  logger.With("component", "fraud"),
		metrics: recorder,
		now:     time.Now,
	}
}

// WithClock replaces the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Screen applies rapid-click, bot, referrer and honeypot checks in that order.
// Hard failures are returned as *apperror.Error. Referrer anomalies only flag
// the returned context.
func (e *Engine) Screen(ctx context.Context, in ScreenInput) (*model.TrackingContext, error) {
	tc := &model.TrackingContext{
		RealIP:        in.Client.IP,
		PromotionCode: in.Code,
		Fingerprint:   in.Client.Fingerprint,
	}

	if err := e.checkRapidClicks(ctx, in); err != nil {
		return nil, err
	}
	if err := e.checkBot(ctx, in); err != nil {
		return nil, err
	}
	e.checkReferrer(ctx, in, tc)
	if err := e.checkHoneypot(ctx, in); err != nil {
		return nil, err
	}

	tc.Geolocation = e.geo.Lookup(ctx, in.Client.IP)
	return tc, nil
}

func (e *Engine) checkRapidClicks(ctx context.Context, in ScreenInput) error {
	key := clicksKeyPrefix + in.Client.IP + ":" + in.Code
	recent, allowed, err := e.store.RecordHit(ctx, key, e.now(), e.cfg.RapidClickWindow, e.cfg.RapidClickTTL, e.cfg.RapidClickLimit)
	if err != nil {
		// Fail open - a cache outage must not block tracking
		e.logger.Error("rapid click check failed",
			slog.String("error", err.Error()),
			slog.String("ip", in.Client.IP),
		)
		return nil
	}
	if allowed {
		return nil
	}

	e.flag(ctx, model.ActivityRapidClicking, in, fmt.Sprintf("%d clicks in %s", recent, e.cfg.RapidClickWindow))
	return apperror.RateLimited(apperror.CodeTooManyRequests, model.ActivityRapidClicking, e.cfg.RapidClickWindow)
}

func (e *Engine) checkBot(ctx context.Context, in ScreenInput) error {
	var detail string
	switch {
	case in.Client.UserAgent == "":
		detail = "empty user agent"
	case in.Header.Get("Accept-Language") == "":
		detail = "missing Accept-Language"
	case in.Header.Get("Accept-Encoding") == "":
		detail = "missing Accept-Encoding"
	default:
		if sig, ok := MatchBotSignature(in.Client.UserAgent); ok {
			detail = "user agent matches " + sig
		}
	}
	if detail == "" {
		return nil
	}

	e.flag(ctx, model.ActivityBotDetected, in, detail)
	return apperror.Forbidden(model.ActivityBotDetected, "Access denied")
}

func (e *Engine) checkReferrer(ctx context.Context, in ScreenInput, tc *model.TrackingContext) {
	stats, err := e.store.TrackReferrer(ctx, referrerKeyPrefix+in.Code, in.Referrer, e.cfg.ReferrerTTL)
	if err != nil {
		e.logger.Warn("referrer tracking failed",
			slog.String("error", err.Error()),
			slog.String("code", in.Code),
		)
		return
	}

	var detail string
	switch {
	case in.Referrer != "" && stats.SameReferrerCount >= e.cfg.SameReferrerThreshold:
		detail = fmt.Sprintf("same referrer %d times", stats.SameReferrerCount)
	case in.Referrer == "" && stats.EmptyReferrerCount >= e.cfg.EmptyReferrerThreshold:
		detail = fmt.Sprintf("empty referrer %d times", stats.EmptyReferrerCount)
	default:
		return
	}

	tc.IsSuspectedFraud = true
	tc.Signals = append(tc.Signals, model.ActivitySuspiciousReferrer)
	e.flag(ctx, model.ActivitySuspiciousReferrer, in, detail)
}

func (e *Engine) checkHoneypot(ctx context.Context, in ScreenInput) error {
	if in.Form == nil {
		return nil
	}
	for _, field := range HoneypotFields {
		if in.Form.Get(field) != "" {
			e.flag(ctx, model.ActivityHoneypot, in, "field "+field)
			return apperror.Forbidden(model.ActivityHoneypot, "Access denied")
		}
	}
	return nil
}

// flag logs a signal and appends it to the hourly suspicious-activity list.
func (e *Engine) flag(ctx context.Context, kind string, in ScreenInput, detail string) {
	now := e.now()
	e.metrics.IncFraudSignal(kind)
	e.logger.Warn("suspicious activity",
		slog.String("reason", kind),
		slog.String("ip", in.Client.IP),
		slog.String("code", in.Code),
		slog.String("detail", detail),
	)

	data, err := json.Marshal(model.SuspiciousActivity{
		Type:          kind,
		Timestamp:     now.UTC(),
		IP:            in.Client.IP,
		PromotionCode: in.Code,
		Detail:        detail,
	})
	if err != nil {
		return
	}
	key := suspiciousKeyPrefix + model.HourBucket(now)
	if err := e.store.PushCapped(ctx, key, data, e.cfg.SuspiciousLogMax, e.cfg.SuspiciousLogTTL); err != nil {
		e.logger.Warn("suspicious activity write failed", slog.String("error", err.Error()))
	}
}

// RecentActivity returns up to n suspicious-activity entries of the hour
// containing at, newest first.
func (e *Engine) RecentActivity(ctx context.Context, at time.Time, n int64) ([]model.SuspiciousActivity, error) {
	raw, err := e.store.ListRecent(ctx, suspiciousKeyPrefix+model.HourBucket(at), n)
	if err != nil {
		return nil, fmt.Errorf("list suspicious activity: %w", err)
	}

	out := make([]model.SuspiciousActivity, 0, len(raw))
	for _, entry := range raw {
		var a model.SuspiciousActivity
		if err := json.Unmarshal(entry, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
