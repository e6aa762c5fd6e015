package middleware

import (
	"log/slog"
	"net/http"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/auth"
)

// Auth returns middleware that resolves the bearer token into an identity.
// Requests without a valid identity are rejected with 401 before any later
// middleware or handler runs.
func Auth(resolver *auth.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractBearer(r.Header.Get("Authorization"))

			identity, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				logAuthFailure(logger, r, err)
				apperror.Write(w, err)
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, err error) {
	appErr := apperror.Wrap(err)
	attrs := []any{
		slog.String("reason", appErr.Reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	}

	if appErr.Kind == apperror.KindInternal {
		logger.Error("identity resolution failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.Warn("authentication failed", attrs...)
}
