package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/testutil"
	"github.com/promotrack/promotrack/internal/testutil/memstore"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// okHandler answers 200 and counts invocations.
func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		w.WriteHeader(http.StatusOK)
	})
}

type authEnv struct {
	store    *memstore.Store
	tokens   *auth.TokenManager
	resolver *auth.Resolver
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	tokens, err := auth.NewTokenManager(testSecret, "promotrack", time.Hour)
	require.NoError(t, err)
	store := memstore.New()
	resolver := auth.NewResolver(tokens, store, cache.NewIdentityCache(cache.NewMemory()), discardLogger())
	return &authEnv{store: store, tokens: tokens, resolver: resolver}
}

// user creates an active user holding roles and returns it with a token.
func (e *authEnv) user(t *testing.T, name string, roles ...string) (*model.User, string) {
	t.Helper()
	u := testutil.NewTestUser(t, name)
	require.NoError(t, e.store.CreateUser(context.Background(), u, roles...))
	token, _, err := e.tokens.Issue(u)
	require.NoError(t, err)
	return u, token
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apperror.Envelope {
	t.Helper()
	var env apperror.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	require.Equal(t, "error", env.Status)
	require.NotEmpty(t, env.Timestamp)
	return env
}
