package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
		wantCalled bool
	}{
		{"nothing configured denies simple request", nil, "https://app.example.com", http.MethodGet, http.StatusOK, "", true},
		{"nothing configured denies preflight", nil, "https://app.example.com", http.MethodOptions, http.StatusForbidden, "", false},
		{"exact origin", []string{"https://app.example.com"}, "https://app.example.com", http.MethodGet, http.StatusOK, "https://app.example.com", true},
		{"case insensitive", []string{"HTTPS://APP.EXAMPLE.COM"}, "https://app.example.com", http.MethodPost, http.StatusOK, "https://app.example.com", true},
		{"preflight answered", []string{"https://app.example.com"}, "https://app.example.com", http.MethodOptions, http.StatusNoContent, "https://app.example.com", false},
		{"other origin on preflight", []string{"https://app.example.com"}, "https://evil.example.net", http.MethodOptions, http.StatusForbidden, "", false},
		{"wildcard subdomain", []string{"https://*.promotrack.io"}, "https://eu.dash.promotrack.io", http.MethodGet, http.StatusOK, "https://eu.dash.promotrack.io", true},
		{"wildcard needs a label", []string{"https://*.promotrack.io"}, "https://promotrack.io", http.MethodOptions, http.StatusForbidden, "", false},
		{"wildcard rejects lookalike", []string{"https://*.promotrack.io"}, "https://evilpromotrack.io", http.MethodOptions, http.StatusForbidden, "", false},
		{"wildcard keeps scheme", []string{"https://*.promotrack.io"}, "http://dash.promotrack.io", http.MethodOptions, http.StatusForbidden, "", false},
		{"same origin untouched", []string{"https://app.example.com"}, "", http.MethodGet, http.StatusOK, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowed

			calls := 0
			handler := CORS(cfg)(okHandler(&calls))

			req := httptest.NewRequest(tt.method, "/api/profile", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCalled, calls == 1)
		})
	}
}

func TestCORS_PreflightHeaders(t *testing.T) {
	t.Parallel()

	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	handler := CORS(cfg)(okHandler(nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/clicks/abc/convert", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	h := rec.Header()
	assert.Equal(t, "GET, POST, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Contains(t, h.Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, h.Get("Access-Control-Allow-Headers"), TraceparentHeader)
	assert.Contains(t, h.Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining")
	assert.Equal(t, "86400", h.Get("Access-Control-Max-Age"))
	assert.Equal(t, "Origin", h.Get("Vary"))
	assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Credentials(t *testing.T) {
	t.Parallel()

	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	cfg.AllowCredentials = true
	handler := CORS(cfg)(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}
