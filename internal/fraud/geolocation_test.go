package fraud

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promotrack/promotrack/internal/cache"
)

func TestHTTPGeolocator_LookupCaches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/json/8.8.8.8", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"United States","countryCode":"US","regionName":"California","city":"Mountain View","isp":"Google LLC"}`))
	}))
	t.Cleanup(srv.Close)

	g := NewHTTPGeolocator(GeoConfig{Endpoint: srv.URL + "/json/{ip}"}, cache.NewMemory(), discardLogger())

	geo := g.Lookup(context.Background(), "8.8.8.8")
	require.NotNil(t, geo)
	assert.Equal(t, "US", geo.CountryCode)
	assert.Equal(t, "California", geo.Region)

	again := g.Lookup(context.Background(), "8.8.8.8")
	require.NotNil(t, again)
	assert.Equal(t, "Mountain View", again.City)
	assert.Equal(t, int32(1), calls.Load(), "second lookup should hit the cache")
}

func TestHTTPGeolocator_SkipsPrivate(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	g := NewHTTPGeolocator(GeoConfig{Endpoint: srv.URL + "/{ip}"}, cache.NewMemory(), discardLogger())
	assert.Nil(t, g.Lookup(context.Background(), "192.168.0.10"))
	assert.Nil(t, g.Lookup(context.Background(), "127.0.0.1"))
	assert.Zero(t, calls.Load())
}

func TestHTTPGeolocator_FailuresYieldNil(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"lookup failed", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"fail"}`))
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			g := NewHTTPGeolocator(GeoConfig{Endpoint: srv.URL + "/{ip}", Timeout: 50 * time.Millisecond}, cache.NewMemory(), discardLogger())
			assert.Nil(t, g.Lookup(context.Background(), "1.1.1.1"))
		})
	}
}

func TestHTTPGeolocator_BudgetExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"FR"}`))
	}))
	t.Cleanup(srv.Close)

	g := NewHTTPGeolocator(GeoConfig{Endpoint: srv.URL + "/{ip}", RPS: 0.001, Burst: 1}, cache.NewMemory(), discardLogger())

	assert.NotNil(t, g.Lookup(context.Background(), "1.1.1.1"))
	assert.Nil(t, g.Lookup(context.Background(), "1.0.0.1"), "over budget lookups are skipped")
	assert.Equal(t, int32(1), calls.Load())
}
