package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/promotrack/promotrack/internal/apperror"
)

// ValidateJSON returns middleware that rejects API write requests whose body
// is not well-formed JSON. Empty bodies pass through; handlers decide whether
// a body is required. The body is restored for the next handler.
func ValidateJSON(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasJSONBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					apperror.Write(w, apperror.BadRequest("Request body too large"))
					return
				}
				apperror.Write(w, apperror.BadRequest("Unable to read request body"))
				return
			}

			if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
				logger.Warn("malformed JSON body",
					slog.String("reason", "bad_request"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				apperror.Write(w, apperror.BadRequest("Invalid JSON body"))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func hasJSONBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	ct := r.Header.Get("Content-Type")
	return ct == "" || isJSONContentType(ct)
}

func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == "application/json"
}
