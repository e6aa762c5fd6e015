package middleware

import (
	"net/http"

	"github.com/promotrack/promotrack/internal/apperror"
)

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS for plain-HTTP local runs.
	IsDevelopment      bool
	MaxRequestBodySize int64
}

// DefaultSecurityConfig returns production defaults with a 1MB body cap.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{MaxRequestBodySize: 1 << 20}
}

// hardeningHeaders are set on every response. The API serves JSON, redirects
// and a tracking pixel, so nothing needs a permissive CSP or framing.
var hardeningHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains; preload"

// Security applies the hardening headers before the handler runs. Tracking
// responses overwrite Cache-Control with their own no-cache set.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range hardeningHeaders {
				h.Set(kv[0], kv[1])
			}
			if !cfg.IsDevelopment {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects requests whose declared length exceeds maxBytes and
// caps streamed bodies at the same size. A non-positive limit disables it.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				apperror.Write(w, apperror.BadRequest("Request body too large"))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
