package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/promotrack/promotrack/internal/cache"
	"github.com/promotrack/promotrack/internal/model"
)

const (
	geoKeyPrefix = "geo:"
	// GeoCacheTTL is how long a lookup result is reused per IP.
	GeoCacheTTL = 24 * time.Hour
	// DefaultGeoEndpoint is an ip-api.com compatible URL template.
	DefaultGeoEndpoint = "http://ip-api.com/json/{ip}?fields=status,country,countryCode,regionName,city,isp"
)

// Geolocator resolves an IP to a location. Implementations return nil on any
// failure; the caller never fails a request because of geolocation.
type Geolocator interface {
	Lookup(ctx context.Context, ip string) *model.Geolocation
}

// NoopGeolocator never resolves anything.
type NoopGeolocator struct{}

func (NoopGeolocator) Lookup(context.Context, string) *model.Geolocation { return nil }

// GeoConfig configures HTTPGeolocator.
type GeoConfig struct {
	Endpoint string
	Timeout  time.Duration
	// RPS bounds outbound lookups. Lookups over budget are skipped.
	RPS   float64
	Burst int
}

// HTTPGeolocator queries an ip-api.com style JSON endpoint and caches results.
type HTTPGeolocator struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	store    cache.Store
	logger   *slog.Logger
}

type geoResponse struct {
	Status      string `json:"status"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	RegionName  string `json:"regionName"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
}

// NewHTTPGeolocator creates a geolocator.
func NewHTTPGeolocator(cfg GeoConfig, store cache.Store, logger *slog.Logger) *HTTPGeolocator {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeoEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &HTTPGeolocator{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		store:    store,
		logger:   logger.With("component", "geolocation"),
	}
}

// Lookup returns the cached or freshly fetched location of ip.
// Private and loopback addresses are never looked up.
func (g *HTTPGeolocator) Lookup(ctx context.Context, ip string) *model.Geolocation {
	if !IsPublicIP(ip) {
		return nil
	}

	key := geoKeyPrefix + ip
	if data, err := g.store.Get(ctx, key); err == nil {
		var geo model.Geolocation
		if json.Unmarshal(data, &geo) == nil {
			return &geo
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		g.logger.Debug("geolocation cache read failed", slog.String("error", err.Error()))
	}

	if !g.limiter.Allow() {
		g.logger.Debug("geolocation budget exhausted", slog.String("ip", ip))
		return nil
	}

	geo, err := g.fetch(ctx, ip)
	if err != nil {
		g.logger.Warn("geolocation lookup failed",
			slog.String("ip", ip),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if data, err := json.Marshal(geo); err == nil {
		if err := g.store.Set(ctx, key, data, GeoCacheTTL); err != nil {
			g.logger.Debug("geolocation cache write failed", slog.String("error", err.Error()))
		}
	}
	return geo
}

func (g *HTTPGeolocator) fetch(ctx context.Context, ip string) (*model.Geolocation, error) {
	target := strings.ReplaceAll(g.endpoint, "{ip}", url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return nil, fmt.Errorf("lookup status %q", body.Status)
	}

	return &model.Geolocation{
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
		City:        body.City,
		ISP:         body.ISP,
	}, nil
}
