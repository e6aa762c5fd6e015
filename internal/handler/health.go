package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// Version is the service version reported by the stats endpoint.
var Version = "dev"

const probeTimeout = 5 * time.Second

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name    string
	checker HealthChecker
}

// HealthHandler serves the liveness, readiness and stats endpoints.
type HealthHandler struct {
	deps    []dependency
	started time.Time
}

// NewHealthHandler creates a HealthHandler. A nil checker is reported as
// "not configured" and never fails a probe.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "postgres", checker: db},
			{name: "redis", checker: cache},
		},
		started: time.Now(),
	}
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// StatsResponse is the body of /api/health/stats.
type StatsResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	Checks     map[string]string `json:"checks"`
	LatencyMs  map[string]int64  `json:"latency_ms"`
}

type probeResult struct {
	healthy bool
	checks  map[string]string
	latency map[string]int64
}

// probe pings every configured dependency sequentially.
func (h *HealthHandler) probe(ctx context.Context) probeResult {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	res := probeResult{
		healthy: true,
		checks:  make(map[string]string, len(h.deps)),
		latency: make(map[string]int64, len(h.deps)),
	}
	for _, dep := range h.deps {
		if dep.checker == nil {
			res.checks[dep.name] = "not configured"
			continue
		}
		start := time.Now()
		err := dep.checker.Ping(ctx)
		res.latency[dep.name] = time.Since(start).Milliseconds()
		if err != nil {
			res.checks[dep.name] = "error: " + err.Error()
			res.healthy = false
			continue
		}
		res.checks[dep.name] = "ok"
	}
	return res
}

// Healthz is the liveness probe. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz is the readiness probe: 503 while any configured dependency fails.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.probe(r.Context())
	if !res.healthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: res.checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: res.checks})
}

// Stats reports dependency latencies and process statistics. It answers 200
// with status "degraded" when a dependency fails.
//
// GET /api/health/stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	res := h.probe(r.Context())

	status := "ok"
	if !res.healthy {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Service:    "promotrack",
		Version:    Version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Checks:     res.checks,
		LatencyMs:  res.latency,
	})
}
