package fraud

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/metrics"
	"github.com/promotrack/promotrack/internal/model"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func browserHeader() http.Header {
	h := http.Header{}
	h.Set("User-Agent", browserUA)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Accept", "text/html")
	return h
}

func browserInput(ip, code string) ScreenInput {
	h := browserHeader()
	return ScreenInput{
		Client: model.ClientIdentity{IP: ip, UserAgent: h.Get("User-Agent"), Fingerprint: Fingerprint(ip, h)},
		Code:   code,
		Header: h,
	}
}

type stubGeo struct{ geo *model.Geolocation }

func (s stubGeo) Lookup(context.Context, string) *model.Geolocation { return s.geo }

func newTestEngine(store cache.Store, rec metrics.Recorder) *Engine {
	return NewEngine(store, nil, DefaultConfig(), discardLogger(), rec)
}

func TestEngine_BrowserPasses(t *testing.T) {
	t.Parallel()

	geo := &model.Geolocation{CountryCode: "DE"}
	e := NewEngine(cache.NewMemory(), stubGeo{geo}, DefaultConfig(), discardLogger(), nil)

	in := browserInput("203.0.113.7", "ABC123XYZ")
	tc, err := e.Screen(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", tc.RealIP)
	assert.Equal(t, "ABC123XYZ", tc.PromotionCode)
	assert.Equal(t, in.Client.Fingerprint, tc.Fingerprint)
	assert.Same(t, geo, tc.Geolocation)
	assert.False(t, tc.IsSuspectedFraud)
}

func TestEngine_BotSignatures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(h http.Header)
	}{
		{"curl", func(h http.Header) { h.Set("User-Agent", "curl/7.68.0") }},
		{"googlebot", func(h http.Header) { h.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)") }},
		{"python", func(h http.Header) { h.Set("User-Agent", "python-requests/2.31") }},
		{"headless chrome", func(h http.Header) { h.Set("User-Agent", "Mozilla/5.0 HeadlessChrome/120.0") }},
		{"empty ua", func(h http.Header) { h.Del("User-Agent") }},
		{"no accept-language", func(h http.Header) { h.Del("Accept-Language") }},
		{"no accept-encoding", func(h http.Header) { h.Del("Accept-Encoding") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := metrics.NewInMemory()
			store := cache.NewMemory()
			e := newTestEngine(store, rec)

			in := browserInput("198.51.100.1", "ABC123XYZ")
			tt.mutate(in.Header)
			in.Client.UserAgent = in.Header.Get("User-Agent")

			_, err := e.Screen(context.Background(), in)
			appErr, ok := apperror.As(err)
			require.True(t, ok, "expected apperror, got %v", err)
			assert.Equal(t, http.StatusForbidden, appErr.Status())
			assert.Equal(t, model.ActivityBotDetected, appErr.Reason)
			assert.Equal(t, uint64(1), rec.Snapshot().FraudSignals[model.ActivityBotDetected])
		})
	}
}

func TestEngine_RapidClicking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	store := cache.NewMemory()
	e := newTestEngine(store, nil).WithClock(func() time.Time { return now })

	in := browserInput("198.51.100.2", "ABC123XYZ")
	for i := 0; i < 10; i++ {
		_, err := e.Screen(ctx, in)
		require.NoError(t, err, "click %d", i+1)
		now = now.Add(time.Second)
	}

	_, err := e.Screen(ctx, in)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status())
	assert.Equal(t, model.ActivityRapidClicking, appErr.Reason)
	assert.Equal(t, apperror.CodeTooManyRequests, appErr.Code)

	activity, err := e.RecentActivity(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, model.ActivityRapidClicking, activity[0].Type)
	assert.Equal(t, "198.51.100.2", activity[0].IP)

	// A different code from the same IP has its own list.
	_, err = e.Screen(ctx, browserInput("198.51.100.2", "OTHERCODE"))
	assert.NoError(t, err)
}

func TestEngine_RapidClickingRunsBeforeBotCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(cache.NewMemory(), nil)
	in := browserInput("198.51.100.3", "ABC123XYZ")
	in.Client.UserAgent = "curl/8.0"

	for i := 0; i < 10; i++ {
		_, err := e.Screen(ctx, in)
		appErr, _ := apperror.As(err)
		require.Equal(t, model.ActivityBotDetected, appErr.Reason)
	}

	_, err := e.Screen(ctx, in)
	appErr, _ := apperror.As(err)
	assert.Equal(t, model.ActivityRapidClicking, appErr.Reason)
}

func TestEngine_ReferrerFlagsButDoesNotBlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.SameReferrerThreshold = 3
	cfg.RapidClickLimit = 1000
	e := NewEngine(cache.NewMemory(), nil, cfg, discardLogger(), nil)

	var last *model.TrackingContext
	for i := 0; i < 3; i++ {
		in := browserInput("198.51.100.4", "ABC123XYZ")
		in.Referrer = "https://spam.example/"
		tc, err := e.Screen(ctx, in)
		require.NoError(t, err)
		last = tc
		if i < 2 {
			assert.False(t, tc.IsSuspectedFraud, "click %d", i+1)
		}
	}

	assert.True(t, last.IsSuspectedFraud)
	assert.Contains(t, last.Signals, model.ActivitySuspiciousReferrer)
}

func TestEngine_EmptyReferrerThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.EmptyReferrerThreshold = 2
	e := NewEngine(cache.NewMemory(), nil, cfg, discardLogger(), nil)

	tc, err := e.Screen(ctx, browserInput("198.51.100.5", "ABC123XYZ"))
	require.NoError(t, err)
	assert.False(t, tc.IsSuspectedFraud)

	tc, err = e.Screen(ctx, browserInput("198.51.100.6", "ABC123XYZ"))
	require.NoError(t, err)
	assert.True(t, tc.IsSuspectedFraud)
}

func TestEngine_Honeypot(t *testing.T) {
	t.Parallel()

	for _, field := range HoneypotFields {
		t.Run(field, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(cache.NewMemory(), nil)
			in := browserInput("198.51.100.7", "ABC123XYZ")
			in.Form = url.Values{field: {"filled"}}

			_, err := e.Screen(context.Background(), in)
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusForbidden, appErr.Status())
			assert.Equal(t, model.ActivityHoneypot, appErr.Reason)
		})
	}
}

func TestEngine_EmptyHoneypotPasses(t *testing.T) {
	t.Parallel()

	e := newTestEngine(cache.NewMemory(), nil)
	in := browserInput("198.51.100.8", "ABC123XYZ")
	in.Form = url.Values{"website_url": {""}, "name": {"player"}}

	_, err := e.Screen(context.Background(), in)
	assert.NoError(t, err)
}

func TestEngine_SuspiciousLogIsCapped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.SuspiciousLogMax = 3
	store := cache.NewMemory()
	now := time.Unix(1_700_000_000, 0)
	e := NewEngine(store, nil, cfg, discardLogger(), nil).WithClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		in := browserInput("198.51.100.9", "ABC123XYZ")
		in.Client.UserAgent = "wget/1.21"
		_, _ = e.Screen(ctx, in)
	}

	activity, err := e.RecentActivity(ctx, now, 100)
	require.NoError(t, err)
	assert.Len(t, activity, 3)
}
