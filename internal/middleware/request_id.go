// Package middleware provides the HTTP middleware chain: request ids, access
// logs, recovery, hardening headers, CORS, authentication, RBAC and rate limits.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	traceIDKey
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// TraceIDHeader echoes the trace id back to the caller.
	TraceIDHeader = "X-Trace-ID"
	// TraceparentHeader is the W3C trace context header.
	TraceparentHeader = "traceparent"

	maxRequestIDLength = 64
)

// RequestID attaches a request id and, when the caller sent one, a trace id
// to the request context and response headers. Client supplied ids are kept
// only when they are short and limited to [A-Za-z0-9._-]; anything else is
// replaced with a fresh UUID so it can be logged safely.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)

		if traceID := traceIDFrom(r.Header); traceID != "" {
			ctx = context.WithValue(ctx, traceIDKey, traceID)
			w.Header().Set(TraceIDHeader, traceID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// traceIDFrom prefers the trace id of a well-formed traceparent
// (version-traceid-parentid-flags) and falls back to X-Trace-ID.
func traceIDFrom(h http.Header) string {
	if parts := strings.Split(h.Get(TraceparentHeader), "-"); len(parts) == 4 {
		if id := strings.ToLower(parts[1]); len(id) == 32 && isHex(id) && id != strings.Repeat("0", 32) {
			return id
		}
	}
	if id := h.Get(TraceIDHeader); validRequestID(id) {
		return id
	}
	return ""
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// GetRequestID returns the request id stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetTraceID returns the trace id stored by RequestID, or "".
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
