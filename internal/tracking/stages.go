package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/fraud"
	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/ratelimit"
	"github.com/promotrack/promotrack/internal/repository"
)

// codePattern is the accepted promotion code format.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,32}$`)

// ValidCode reports whether code has the promotion code format.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// codeStage takes the code from the route, or the code/ref query parameter.
type codeStage struct{}

func (codeStage) Name() State { return StateCodeExtracted }

func (codeStage) Execute(_ context.Context, req *Request) error {
	code := req.RawCode
	if code == "" {
		q := req.HTTP.URL.Query()
		code = q.Get("code")
		if code == "" {
			code = q.Get("ref")
		}
	}
	if !ValidCode(code) {
		return apperror.BadRequest("Invalid promotion code")
	}
	req.Code = code
	return nil
}

// rateStage applies the tracking limiter. Store failures fail open.
type rateStage struct {
	limiter *ratelimit.TrackingLimiter
	logger  *slog.Logger
	metrics metrics.Recorder
}

func (rateStage) Name() State { return StateRateChecked }

func (s rateStage) Execute(ctx context.Context, req *Request) error {
	res, err := s.limiter.Allow(ctx, req.Client.IP, req.Code)
	if err != nil {
		s.logger.Error("tracking rate check failed",
			slog.String("error", err.Error()),
			slog.String("ip", req.Client.IP),
		)
		return nil
	}
	req.RateLimit = res
	if !res.Allowed {
		s.metrics.IncRateLimitRejected("tracking")
		return apperror.RateLimited(apperror.CodeTooManyRequests, "rate_limit_exceeded", res.RetryAfter)
	}
	return nil
}

// fraudStage runs the heuristics engine.
type fraudStage struct {
	engine *fraud.Engine
}

func (fraudStage) Name() State { return StateFraudScreened }

func (s fraudStage) Execute(ctx context.Context, req *Request) error {
	in := fraud.ScreenInput{
		Client:   req.Client,
		Code:     req.Code,
		Referrer: req.HTTP.Referer(),
		Header:   req.HTTP.Header,
	}
	if req.HTTP.Method == http.MethodPost {
		if err := req.HTTP.ParseForm(); err != nil {
			return apperror.BadRequest("Invalid form body")
		}
		in.Form = req.HTTP.PostForm
	}

	tc, err := s.engine.Screen(ctx, in)
	if err != nil {
		return err
	}
	req.Tracking = tc
	return nil
}

// recordStage resolves the promotion and persists the click.
type recordStage struct {
	promotions PromotionStore
	cache      *cache.PromotionCache
	clicks     ClickStore
	logger     *slog.Logger
	metrics    metrics.Recorder
	now        func() time.Time
}

func (recordStage) Name() State { return StateClickRecorded }

func (s recordStage) Execute(ctx context.Context, req *Request) error {
	promo, err := s.resolve(ctx, req.Code)
	if err != nil {
		return err
	}

	now := s.now()
	if !promo.IsTrackable(now) {
		return apperror.NotFound("Promotion not found")
	}

	ua := req.Client.UserAgent
	click := &model.Click{
		ID:          ulid.Make().String(),
		PromotionID: promo.ID,
		ServerID:    promo.ServerID,
		VisitorIP:   req.Client.IP,
		Fingerprint: req.Client.Fingerprint,
		UserAgent:   truncate(ua, 500),
		ReferrerURL: truncate(req.HTTP.Referer(), 500),
		UTMParams:   CaptureUTM(req.HTTP.URL.Query()),
		DeviceType:  fraud.DetectDevice(ua),
		CreatedAt:   now.UTC(),
	}
	if req.Tracking != nil {
		click.IsSuspectedFraud = req.Tracking.IsSuspectedFraud
		if req.Tracking.Geolocation != nil {
			click.CountryCode = req.Tracking.Geolocation.CountryCode
		}
	}

	if err := s.clicks.RecordClick(ctx, click); err != nil {
		if errors.Is(err, repository.ErrPromotionNotFound) {
			return apperror.NotFound("Promotion not found")
		}
		return fmt.Errorf("record click: %w", err)
	}

	req.Promotion = promo
	req.Click = click
	return nil
}

// resolve is a cache-aside promotion lookup with negative caching.
func (s recordStage) resolve(ctx context.Context, code string) (*model.Promotion, error) {
	if s.cache != nil {
		promo, err := s.cache.Get(ctx, code)
		if err == nil {
			s.metrics.IncPromotionCacheHit()
			return promo, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.IncPromotionCacheMiss()
			if negative, _ := s.cache.IsNegativelyCached(ctx, code); negative {
				return nil, apperror.NotFound("Promotion not found")
			}
		} else {
			s.logger.Warn("promotion cache read failed", slog.String("error", err.Error()))
		}
	}

	promo, err := s.promotions.GetPromotionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrPromotionNotFound) {
			if s.cache != nil {
				_ = s.cache.SetNegativeCache(ctx, code)
			}
			return nil, apperror.NotFound("Promotion not found")
		}
		return nil, fmt.Errorf("get promotion: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, promo); err != nil {
			s.logger.Warn("promotion cache write failed", slog.String("error", err.Error()))
		}
	}
	return promo, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
