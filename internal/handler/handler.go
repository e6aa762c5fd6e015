// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/middleware"
)

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	apperror.Write(w, apperror.NotFound("Resource not found"))
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(apperror.Envelope{
		Status:    "error",
		Message:   "Method not allowed",
		Code:      http.StatusMethodNotAllowed,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON decodes the request body into dst. An empty body is a bad
// request unless allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	case errors.Is(err, io.EOF):
		return apperror.BadRequest("Request body is required")
	default:
		return apperror.BadRequest("Invalid request body")
	}
}

// writeError renders err and logs it when it is not an expected rejection.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := apperror.Wrap(err)
	if appErr.Kind == apperror.KindInternal {
		logger.Error("request failed",
			slog.String("error", err.Error()),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
	}
	apperror.Write(w, appErr)
}
