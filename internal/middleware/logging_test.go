package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logLine runs one request through Logger (behind RequestID) and returns the
// decoded JSON record.
func logLine(t *testing.T, h http.Handler, req *http.Request) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	RequestID(Logger(logger)(h)).ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), "log: %s", buf.String())
	return record
}

func TestLogger_Fields(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	req.Header.Set(RequestIDHeader, "reg-42")
	req.Header.Set(TraceparentHeader, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	rec := logLine(t, h, req)

	assert.Equal(t, "http request", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "reg-42", rec["request_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec["trace_id"])
	assert.Equal(t, http.MethodPost, rec["method"])
	assert.Equal(t, "/api/auth/register", rec["path"])
	assert.Equal(t, float64(http.StatusCreated), rec["status_code"])
	assert.Equal(t, float64(len(`{"status":"success"}`)), rec["bytes"])
	assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", rec["user_agent"])
	assert.Contains(t, rec, "duration_ms")
}

func TestLogger_RoutePattern(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logger(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.Get("/r/{code}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/r/SUMMER24", nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "log: %s", buf.String())
	assert.Equal(t, "/r/SUMMER24", rec["path"])
	assert.Equal(t, "/r/{code}", rec["route"])
}

func TestLogger_NeverLogsCredentials(t *testing.T) {
	t.Parallel()

	const token = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJ1c2VyLTEifQ.c2ln"

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Logger(logger)(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/promotion/track/SUMMER24?password=hunter2&ref=mail", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, secret := range []string{token, "Bearer", "hunter2", "ref=mail"} {
		assert.NotContains(t, out, secret)
	}
}

func TestLogger_LevelByStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusFound, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusForbidden, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			rec := logLine(t, h, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
			assert.Equal(t, tt.want, rec["level"])
		})
	}
}

func TestLogger_ImplicitStatus(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("GIF89a"))
	})
	rec := logLine(t, h, httptest.NewRequest(http.MethodGet, "/api/promotion/pixel/SUMMER24", nil))

	assert.Equal(t, float64(http.StatusOK), rec["status_code"])
	assert.Equal(t, float64(6), rec["bytes"])
}

func TestLogger_NoWrite(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := logLine(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, float64(http.StatusOK), rec["status_code"])
	assert.Equal(t, "INFO", rec["level"])
}
