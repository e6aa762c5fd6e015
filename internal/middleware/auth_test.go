package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/model"
)

func TestAuth_RejectsBeforeHandler(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	inactive, inactiveToken := env.user(t, "dormant", model.RoleUser)
	require.NoError(t, env.store.SetUserActive(context.Background(), inactive.ID, false))

	tests := []struct {
		name       string
		header     string
		wantReason string
	}{
		{"no header", "", "missing_token"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "missing_token"},
		{"garbage token", "Bearer not-a-jwt", "invalid_token"},
		{"unknown user", "", "unknown_user"},
		{"inactive user", "Bearer " + inactiveToken, "inactive_user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if tt.wantReason == "unknown_user" {
				token, _, err := env.tokens.Issue(&model.User{ID: "ghost"})
				require.NoError(t, err)
				header = "Bearer " + token
			}

			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, nil))

			calls := 0
			handler := Auth(env.resolver, logger)(okHandler(&calls))

			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, 0, calls, "handler must not run")
			body := decodeEnvelope(t, rec)
			assert.Equal(t, "UNAUTHORIZED", body.Code)
			assert.Contains(t, logs.String(), `"reason":"`+tt.wantReason+`"`)
			assert.Contains(t, logs.String(), `"level":"WARN"`)
		})
	}
}

func TestAuth_StoresIdentity(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	user, token := env.user(t, "alice", model.RoleServerOwner)

	var got *model.Identity
	handler := Auth(env.resolver, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.UserID)
	assert.True(t, got.HasRole(model.RoleServerOwner))
}

func TestAuth_StoreFailureIsInternal(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	_, token := env.user(t, "bob", model.RoleUser)
	env.store.Err = errors.New("connection refused")

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	handler := Auth(env.resolver, logger)(okHandler(nil))
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.True(t, strings.Contains(logs.String(), "connection refused"))
}

func TestAuth_DeactivatedAfterCachedResolve(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t)
	user, token := env.user(t, "carol", model.RoleServerOwner)
	handler := Auth(env.resolver, discardLogger())(okHandler(nil))

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, serve().Code)

	require.NoError(t, env.store.SetUserActive(context.Background(), user.ID, false))
	rec := serve()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeEnvelope(t, rec).Code)
}
