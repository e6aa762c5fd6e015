package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access to /api. An empty AllowedOrigins
// list denies every cross-origin caller. Entries of the form
// "https://*.example.com" match any subdomain on that scheme.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig returns the method and header lists the API needs with no
// origins allowed.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			RequestIDHeader,
			TraceparentHeader,
			"Accept",
			"Accept-Language",
		},
		ExposedHeaders: []string{
			RequestIDHeader,
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		MaxAge: 86400,
	}
}

// corsPolicy is the compiled form of a CORSConfig.
type corsPolicy struct {
	exact    map[string]struct{}
	suffixes []wildcardOrigin

	methods     string
	headers     string
	exposed     string
	maxAge      string
	credentials bool
}

type wildcardOrigin struct {
	scheme string // "https://"
	suffix string // ".example.com"
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		exact:       make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:     strings.Join(cfg.AllowedMethods, ", "),
		headers:     strings.Join(cfg.AllowedHeaders, ", "),
		exposed:     strings.Join(cfg.ExposedHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}

	for _, origin := range cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "" {
			continue
		}
		scheme, host, ok := strings.Cut(origin, "://")
		if ok && strings.HasPrefix(host, "*.") {
			p.suffixes = append(p.suffixes, wildcardOrigin{
				scheme: scheme + "://",
				suffix: host[1:],
			})
			continue
		}
		p.exact[origin] = struct{}{}
	}
	return p
}

// allows reports whether origin may call the API. A wildcard needs at least
// one label in front of the suffix, so "https://*.example.com" does not
// match "https://example.com" or "https://notexample.com".
func (p *corsPolicy) allows(origin string) bool {
	origin = strings.ToLower(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, w := range p.suffixes {
		host, ok := strings.CutPrefix(origin, w.scheme)
		if !ok || !strings.HasSuffix(host, w.suffix) {
			continue
		}
		if label := strings.TrimSuffix(host, w.suffix); label != "" && !strings.Contains(label, "/") {
			return true
		}
	}
	return false
}

// CORS answers preflight requests and annotates responses for allowed
// origins. Same-origin requests (no Origin header) pass through untouched.
// A disallowed preflight gets 403; a disallowed simple request is served
// without CORS headers so the browser withholds the response.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions
			if !policy.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if policy.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if policy.exposed != "" {
				h.Set("Access-Control-Expose-Headers", policy.exposed)
			}

			if preflight {
				h.Set("Access-Control-Allow-Methods", policy.methods)
				h.Set("Access-Control-Allow-Headers", policy.headers)
				if policy.maxAge != "" {
					h.Set("Access-Control-Max-Age", policy.maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
