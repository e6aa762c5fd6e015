// Package main is the entrypoint for the promotrack API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/config"
	"github.com/promotrack/promotrack/internal/events"
	"github.com/promotrack/promotrack/internal/fraud"
	"github.com/promotrack/promotrack/internal/handler"
	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/middleware"
	"github.com/promotrack/promotrack/internal/ratelimit"
	"github.com/promotrack/promotrack/internal/rbac"
	"github.com/promotrack/promotrack/internal/repository"
	"github.com/promotrack/promotrack/internal/server"
	"github.com/promotrack/promotrack/internal/tracking"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// Metrics
	promRecorder := metrics.NewPrometheus()

	// Identity and access control
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("failed to initialize token manager", slog.String("error", err.Error()))
		_ = cacheClient.Close()
		repo.Close()
		os.Exit(1)
	}
	resolver := auth.NewResolver(tokens, repo, cache.NewIdentityCache(cacheClient), logger)
	auditLog := rbac.NewAuditLog(cacheClient, logger)
	evaluator := rbac.NewEvaluator(repo, auditLog, logger, promRecorder)

	// Rate limiting and fraud screening
	limiter := ratelimit.New(cacheClient)
	var geo fraud.Geolocator = fraud.NoopGeolocator{}
	if cfg.GeoEnabled {
		geo = fraud.NewHTTPGeolocator(cfg.GeoConfig(), cacheClient, logger)
	}
	fraudEngine := fraud.NewEngine(cacheClient, geo, cfg.FraudConfig(), logger, promRecorder)

	// Tracking pipeline
	publisher := events.NewPublisher(cacheClient.Client(), logger, promRecorder)
	trackingService := tracking.NewService(tracking.Options{
		Promotions:        repo,
		Clicks:            repo,
		PromotionCache:    cache.NewPromotionCache(cacheClient),
		Limiter:           ratelimit.NewTrackingLimiter(limiter, cfg.TrackingQuota()),
		Fraud:             fraudEngine,
		Events:            publisher,
		TrustProxyHeaders: cfg.TrustedProxyHeaders,
		Logger:            logger,
		Metrics:           promRecorder,
	})

	// Setup router
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := server.NewRouter(server.RouterConfig{
		Logger:            logger,
		Resolver:          resolver,
		Evaluator:         evaluator,
		Limiter:           limiter,
		Policy:            cfg.RateLimitPolicy(),
		RateLimitEnabled:  cfg.RateLimitEnabled,
		TrustProxyHeaders: cfg.TrustedProxyHeaders,
		Metrics:           promRecorder,
		MetricsHandler:    promRecorder.Handler(),
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		CORS:     corsCfg,
		Tracking: handler.NewTrackingHandler(trackingService),
		Auth:     handler.NewAuthHandler(repo, tokens, trackingService, logger),
		Account:  handler.NewAccountHandler(repo, trackingService, logger),
		Admin:    handler.NewAdminHandler(fraudEngine, auditLog, logger),
		Health:   handler.NewHealthHandler(repo, cacheClient),
	})

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Registered first, closed last.
	srv.OnShutdown("database", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	srv.OnShutdown("audit", auditLog.Close)

	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("env", cfg.AppEnv),
		slog.Bool("rate_limit_enabled", cfg.RateLimitEnabled),
		slog.Bool("geo_enabled", cfg.GeoEnabled),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
