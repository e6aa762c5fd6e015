package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promotrack/promotrack/internal/middleware"
	"github.com/promotrack/promotrack/internal/tracking"
)

// TrackingHandler serves the public promotion tracking routes.
type TrackingHandler struct {
	svc *tracking.Service
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(svc *tracking.Service) *TrackingHandler {
	return &TrackingHandler{svc: svc}
}

// Track handles GET /api/promotion/track/{code}, /api/r/{code} and /r/{code}.
// The code may also be given as ?code= or ?ref= on a bare route.
func (h *TrackingHandler) Track(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, tracking.FormatFor(r, false))
}

// Pixel handles GET /api/promotion/pixel/{code}.
func (h *TrackingHandler) Pixel(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, tracking.FormatPixel)
}

func (h *TrackingHandler) serve(w http.ResponseWriter, r *http.Request, format tracking.Format) {
	req, err := h.svc.Track(r.Context(), r, chi.URLParam(r, "code"), format)
	middleware.SetRateLimitHeaders(w, req.RateLimit)
	if err != nil {
		tracking.WriteError(w, err)
		return
	}
	tracking.WriteResponse(w, r, req)
}
