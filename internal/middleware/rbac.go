package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/rbac"
)

// Require returns middleware that enforces req against the resolved identity.
// Must be applied after Auth middleware.
func Require(evaluator *rbac.Evaluator, req rbac.Requirement, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.IdentityFromContext(r.Context())
			if identity == nil {
				apperror.Write(w, apperror.Unauthenticated("missing_identity", "Authentication required"))
				return
			}

			decision, err := evaluator.Evaluate(r.Context(), identity, req, r.URL.Path)
			if err != nil {
				logger.Error("access evaluation failed",
					slog.String("error", err.Error()),
					slog.String("requirement", req.String()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				apperror.Write(w, apperror.Internal(err))
				return
			}

			evaluator.Record(model.AuditEntry{
				UserID:    identity.UserID,
				Method:    r.Method,
				Path:      r.URL.Path,
				Allowed:   decision.Allowed,
				Reason:    decision.Reason,
				RequestID: GetRequestID(r.Context()),
				Timestamp: time.Now().UTC(),
			})

			if !decision.Allowed {
				apperror.Write(w, apperror.Forbidden(decision.Reason, "Access denied"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
