package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/handler/dto"
	"github.com/promotrack/promotrack/internal/model"
)

// Listing limits.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ActivityLister lists recorded suspicious activity for one hour.
type ActivityLister interface {
	RecentActivity(ctx context.Context, at time.Time, n int64) ([]model.SuspiciousActivity, error)
}

// AuditLister lists access-audit entries for one hour.
type AuditLister interface {
	Recent(ctx context.Context, at time.Time, n int64) ([]model.AuditEntry, error)
}

// AdminHandler provides admin-only endpoints for fraud review and auditing.
type AdminHandler struct {
	activity ActivityLister
	audit    AuditLister
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(activity ActivityLister, audit AuditLister, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		activity: activity,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// SuspiciousActivity handles GET /api/admin/fraud/suspicious?hour=&limit=
// Returns the newest suspicious-activity records of the hour, newest first.
func (h *AdminHandler) SuspiciousActivity(w http.ResponseWriter, r *http.Request) {
	at, limit, err := h.parseListQuery(r)
	if err != nil {
		apperror.Write(w, err)
		return
	}

	items, err := h.activity.RecentActivity(r.Context(), at, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(items))
}

// Audit handles GET /api/admin/audit?hour=&limit=
// Returns the newest access decisions of the hour, newest first.
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	at, limit, err := h.parseListQuery(r)
	if err != nil {
		apperror.Write(w, err)
		return
	}

	entries, err := h.audit.Recent(r.Context(), at, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(entries))
}

// parseListQuery reads ?hour= (YYYYMMDDHH or RFC3339, default now) and
// ?limit= (default 100, max 1000).
func (h *AdminHandler) parseListQuery(r *http.Request) (time.Time, int64, error) {
	query := r.URL.Query()

	at := h.now().UTC()
	if hour := query.Get("hour"); hour != "" {
		parsed, err := parseHour(hour)
		if err != nil {
			return time.Time{}, 0, apperror.BadRequest("hour must be YYYYMMDDHH or RFC3339")
		}
		at = parsed
	}

	limit := int64(defaultListLimit)
	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.ParseInt(l, 10, 64)
		if err != nil || parsed <= 0 {
			return time.Time{}, 0, apperror.BadRequest("limit must be a positive integer")
		}
		limit = min(parsed, maxListLimit)
	}
	return at, limit, nil
}

func parseHour(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(model.HourBucketLayout, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
