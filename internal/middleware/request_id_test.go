package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		wantKept bool
	}{
		{"generated when absent", "", false},
		{"client id kept", "req-123", true},
		{"dots and underscores kept", "edge_01.a-b", true},
		{"spaces replaced", "req 123", false},
		{"log injection replaced", "abc\ninjected=1", false},
		{"too long replaced", strings.Repeat("a", maxRequestIDLength+1), false},
		{"max length kept", strings.Repeat("a", maxRequestIDLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tt.wantKept {
				assert.Equal(t, tt.incoming, seen)
				return
			}
			_, err := uuid.Parse(seen)
			assert.NoError(t, err, "replacement id %q should be a UUID", seen)
		})
	}
}

func TestRequestID_TraceID(t *testing.T) {
	t.Parallel()

	const traceHex = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		traceparent string
		xTraceID    string
		want        string
	}{
		{"none", "", "", ""},
		{"traceparent", "00-" + traceHex + "-00f067aa0ba902b7-01", "", traceHex},
		{"traceparent upper case", "00-" + strings.ToUpper(traceHex) + "-00f067aa0ba902b7-01", "", traceHex},
		{"traceparent wins over header", "00-" + traceHex + "-00f067aa0ba902b7-01", "other", traceHex},
		{"all-zero trace falls back", "00-" + strings.Repeat("0", 32) + "-00f067aa0ba902b7-01", "fallback-1", "fallback-1"},
		{"malformed traceparent falls back", "garbage", "fallback-2", "fallback-2"},
		{"non-hex trace id ignored", "00-" + strings.Repeat("z", 32) + "-00f067aa0ba902b7-01", "", ""},
		{"unsafe header ignored", "", "a b", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetTraceID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/r/SUMMER24", nil)
			if tt.traceparent != "" {
				req.Header.Set(TraceparentHeader, tt.traceparent)
			}
			if tt.xTraceID != "" {
				req.Header.Set(TraceIDHeader, tt.xTraceID)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, seen)
			assert.Equal(t, tt.want, rec.Header().Get(TraceIDHeader))
		})
	}
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
	assert.Empty(t, GetTraceID(req.Context()))
}
