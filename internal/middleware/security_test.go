package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurity(t *testing.T) {
	t.Parallel()

	for _, isDev := range []bool{false, true} {
		handler := Security(SecurityConfig{IsDevelopment: isDev})(okHandler(nil))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

		for _, kv := range hardeningHeaders {
			assert.Equal(t, kv[1], rec.Header().Get(kv[0]), "dev=%v header %s", isDev, kv[0])
		}
		if isDev {
			assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
		} else {
			assert.Equal(t, hstsValue, rec.Header().Get("Strict-Transport-Security"))
		}
	}
}

func TestSecurity_HandlerMayOverrideCacheControl(t *testing.T) {
	t.Parallel()

	handler := Security(DefaultSecurityConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(http.StatusFound)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/r/SUMMER24", nil))

	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		maxBytes      int64
		body          string
		contentLength int64
		wantStatus    int
		wantReadErr   bool
	}{
		{"within limit", 1024, `{"username":"alice"}`, 20, http.StatusOK, false},
		{"declared length too large", 10, `{"username":"alice"}`, 20, http.StatusBadRequest, false},
		{"streamed body capped", 10, `{"username":"alice"}`, -1, http.StatusOK, true},
		{"disabled", 0, strings.Repeat("x", 4096), 4096, http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var readErr error
			handler := MaxBodySize(tt.maxBytes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusBadRequest {
				env := decodeEnvelope(t, rec)
				assert.Equal(t, "Request body too large", env.Message)
				return
			}
			if tt.wantReadErr {
				var maxErr *http.MaxBytesError
				assert.ErrorAs(t, readErr, &maxErr)
			} else {
				assert.NoError(t, readErr)
			}
		})
	}
}
