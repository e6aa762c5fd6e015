package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/fraud"
	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/ratelimit"
)

// RateLimitConfig holds configuration for the generic rate limiting middleware.
type RateLimitConfig struct {
	Logger            *slog.Logger
	Limiter           *ratelimit.Limiter
	Policy            ratelimit.Policy
	Metrics           metrics.Recorder
	Enabled           bool
	TrustProxyHeaders bool
}

// RateLimit returns middleware that enforces per-class fixed-window quotas.
// Authenticated callers are counted per user, everyone else per client IP.
// Store failures fail open.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			class := ratelimit.Classify(r)
			quota := cfg.Policy.QuotaFor(class)
			ip := fraud.ClientIP(r, cfg.TrustProxyHeaders)
			identifier := ratelimit.Identifier(class, auth.UserIDFromContext(r.Context()), ip)

			result, err := cfg.Limiter.Allow(r.Context(), identifier, quota.Limit, quota.Window)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("class", string(class)),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			SetRateLimitHeaders(w, result)

			if !result.Allowed {
				recorder.IncRateLimitRejected(string(class))
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("reason", "rate_limit_exceeded"),
					slog.String("class", string(class)),
					slog.String("ip", ip),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				apperror.Write(w, apperror.RateLimited(apperror.CodeRateLimitExceeded, "rate_limit_exceeded", result.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetRateLimitHeaders sets the X-RateLimit-* headers for result.
func SetRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	if result.Limit <= 0 {
		return
	}
	remaining := result.Remaining
	if !result.Allowed || remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
