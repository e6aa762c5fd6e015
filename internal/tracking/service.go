package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/events"
	"github.com/promotrack/promotrack/internal/fraud"
	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/middleware"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/ratelimit"
	"github.com/promotrack/promotrack/internal/repository"
)

// Conversion errors.
var (
	ErrClickNotFound    = repository.ErrClickNotFound
	ErrAlreadyConverted = repository.ErrAlreadyConverted
)

// PromotionStore looks up promotions by code.
type PromotionStore interface {
	GetPromotionByCode(ctx context.Context, code string) (*model.Promotion, error)
}

// ClickStore persists clicks and conversions. RecordClick must compute
// uniqueness and bump the promotion counters atomically with the insert;
// MarkConverted must succeed at most once per click.
type ClickStore interface {
	RecordClick(ctx context.Context, click *model.Click) error
	MarkConverted(ctx context.Context, clickID, userID string) (*model.Click, error)
}

// EventPublisher receives recorded clicks and conversions.
type EventPublisher interface {
	PublishAsync(event events.Event)
}

// Options wires a Service.
type Options struct {
	Promotions     PromotionStore
	Clicks         ClickStore
	PromotionCache *cache.PromotionCache // optional
	Limiter        *ratelimit.TrackingLimiter
	Fraud          *fraud.Engine
	Events         EventPublisher // optional
	// TrustProxyHeaders enables CF-Connecting-IP / X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	Logger            *slog.Logger
	Metrics           metrics.Recorder
}

// Service runs the tracking pipeline and records conversions.
type Service struct {
	pipeline   *Pipeline
	clicks     ClickStore
	events     EventPublisher
	trustProxy bool
	logger     *slog.Logger
	metrics    metrics.Recorder
	now        func() time.Time
}

// NewService creates the service and its stage list.
func NewService(opts Options) *Service {
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	logger := opts.Logger.With("component", "tracking")

	s := &Service{
		clicks:     opts.Clicks,
		events:     opts.Events,
		trustProxy: opts.TrustProxyHeaders,
		logger:     logger,
		metrics:    recorder,
		now:        time.Now,
	}
	s.pipeline = NewPipeline(
		codeStage{},
		rateStage{limiter: opts.Limiter, logger: logger, metrics: recorder},
		fraudStage{engine: opts.Fraud},
		recordStage{
			promotions: opts.Promotions,
			cache:      opts.PromotionCache,
			clicks:     opts.Clicks,
			logger:     logger,
			metrics:    recorder,
			now:        func() time.Time { return s.now() },
		},
	)
	return s
}

// WithClock replaces the clock used for click timestamps and expiry checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Pipeline exposes the stage list.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// Track runs r through the pipeline. The returned error is always an
// *apperror.Error; the returned Request is never nil.
func (s *Service) Track(ctx context.Context, r *http.Request, rawCode string, format Format) (*Request, error) {
	start := time.Now()
	req := &Request{
		HTTP:    r,
		RawCode: rawCode,
		Format:  format,
		Client:  fraud.ClientIdentityFromRequest(r, s.trustProxy),
	}

	err := s.pipeline.Run(ctx, req)
	duration := time.Since(start)
	s.metrics.ObserveTrackingDuration(duration)

	if err != nil {
		appErr := apperror.Wrap(err)
		s.metrics.IncTrackingOutcome(string(req.FailedStage), "rejected")
		attrs := []any{
			slog.String("request_id", middleware.GetRequestID(ctx)),
			slog.String("stage", string(req.FailedStage)),
			slog.String("reason", appErr.Reason),
			slog.String("ip", req.Client.IP),
			slog.String("code", req.Code),
		}
		if appErr.Kind == apperror.KindInternal {
			s.logger.Error("tracking failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			s.logger.Warn("tracking rejected", attrs...)
		}
		return req, appErr
	}

	s.metrics.IncTrackingOutcome(string(StateClickRecorded), "recorded")
	if s.events != nil {
		s.events.PublishAsync(events.ClickEvent(req.Click, req.Code))
	}

	s.logger.Info("click recorded",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("code", req.Code),
		slog.String("click_id", req.Click.ID),
		slog.Bool("unique", req.Click.IsUnique),
		slog.Bool("suspected_fraud", req.Click.IsSuspectedFraud),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	)
	return req, nil
}

// MarkConverted attributes userID's signup to clickID. It succeeds at most
// once per click; see ErrClickNotFound and ErrAlreadyConverted.
func (s *Service) MarkConverted(ctx context.Context, clickID, userID string) (*model.Click, error) {
	if clickID == "" {
		return nil, ErrClickNotFound
	}

	click, err := s.clicks.MarkConverted(ctx, clickID, userID)
	if err != nil {
		if errors.Is(err, ErrClickNotFound) || errors.Is(err, ErrAlreadyConverted) {
			return nil, err
		}
		return nil, fmt.Errorf("mark converted: %w", err)
	}

	s.metrics.IncConversion()
	if s.events != nil {
		s.events.PublishAsync(events.ConversionEvent(click))
	}
	s.logger.Info("click converted",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("click_id", clickID),
		slog.String("user_id", userID),
		slog.String("promotion_id", click.PromotionID),
	)
	return click, nil
}
