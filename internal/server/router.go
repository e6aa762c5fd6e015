package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/handler"
	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/middleware"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/ratelimit"
	"github.com/promotrack/promotrack/internal/rbac"
)

// Route requirements for the protected API.
var (
	RequireProfile     = rbac.Requirement{Level: model.LowestRoleLevel}
	RequireOwner       = rbac.Requirement{Ownership: true}
	RequireConvert     = rbac.Requirement{Permission: "clicks.convert"}
	RequireAdmin       = rbac.Requirement{Role: model.RoleAdmin}
	RequireHealthStats = rbac.Requirement{Level: model.LevelForRole(model.RoleAdmin)}
)

// RouterConfig carries everything the router wires together.
type RouterConfig struct {
	Logger    *slog.Logger
	Resolver  *auth.Resolver
	Evaluator *rbac.Evaluator

	Limiter           *ratelimit.Limiter
	Policy            ratelimit.Policy
	RateLimitEnabled  bool
	TrustProxyHeaders bool
	Metrics           metrics.Recorder
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	Security middleware.SecurityConfig
	CORS     middleware.CORSConfig

	Tracking *handler.TrackingHandler
	Auth     *handler.AuthHandler
	Account  *handler.AccountHandler
	Admin    *handler.AdminHandler
	Health   *handler.HealthHandler
}

// NewRouter builds the chi router. Protected routes run
// Auth -> Require -> RateLimit so the limiter counts per user.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))

	// Health endpoints (no auth required)
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Logger:            cfg.Logger,
		Limiter:           cfg.Limiter,
		Policy:            cfg.Policy,
		Metrics:           cfg.Metrics,
		Enabled:           cfg.RateLimitEnabled,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})
	protect := func(req rbac.Requirement) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return middleware.Auth(cfg.Resolver, cfg.Logger)(
				middleware.Require(cfg.Evaluator, req, cfg.Logger)(
					rateLimit(next),
				),
			)
		}
	}

	// Short tracking link outside /api; only the pipeline's own quotas apply.
	r.Get("/r/{code}", cfg.Tracking.Track)
	r.Post("/r/{code}", cfg.Tracking.Track)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORS))
		r.Use(middleware.ValidateJSON(cfg.Logger))

		// Public routes, counted per client IP
		r.Group(func(r chi.Router) {
			r.Use(rateLimit)

			r.Get("/promotion/track/{code}", cfg.Tracking.Track)
			r.Post("/promotion/track/{code}", cfg.Tracking.Track)
			r.Get("/r/{code}", cfg.Tracking.Track)
			r.Post("/r/{code}", cfg.Tracking.Track)
			r.Get("/promotion/pixel/{code}", cfg.Tracking.Pixel)

			r.Post("/auth/login", cfg.Auth.Login)
			r.Post("/auth/register", cfg.Auth.Register)
		})

		// Protected
		r.With(protect(RequireProfile)).Get("/profile", cfg.Account.Profile)
		r.With(protect(RequireOwner)).Get("/servers/{id}", cfg.Account.Server)
		r.With(protect(RequireOwner)).Get("/promotions/{id}/stats", cfg.Account.PromotionStats)
		r.With(protect(RequireConvert)).Post("/clicks/{id}/convert", cfg.Account.Convert)
		r.With(protect(RequireHealthStats)).Get("/health/stats", cfg.Health.Stats)

		r.Route("/admin", func(r chi.Router) {
			r.Use(protect(RequireAdmin))
			r.Get("/fraud/suspicious", cfg.Admin.SuspiciousActivity)
			r.Get("/audit", cfg.Admin.Audit)
		})
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
