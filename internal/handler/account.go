package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/handler/dto"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/repository"
	"github.com/promotrack/promotrack/internal/tracking"
)

// ResourceStore reads the resources exposed to their owners.
type ResourceStore interface {
	GetServerByID(ctx context.Context, id string) (*model.Server, error)
	GetPromotionByID(ctx context.Context, id string) (*model.Promotion, error)
}

// AccountHandler serves the authenticated, owner-scoped routes. Access
// decisions are made by middleware.Require before these run.
type AccountHandler struct {
	store     ResourceStore
	converter Converter
	logger    *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(store ResourceStore, converter Converter, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		store:     store,
		converter: converter,
		logger:    logger,
	}
}

// Profile handles GET /api/profile.
func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		apperror.Write(w, apperror.Unauthenticated("missing_identity", "Authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, dto.ToProfileResponse(identity))
}

// Server handles GET /api/servers/{id}.
func (h *AccountHandler) Server(w http.ResponseWriter, r *http.Request) {
	server, err := h.store.GetServerByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrServerNotFound) {
			apperror.Write(w, apperror.NotFound("Server not found"))
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// PromotionStats handles GET /api/promotions/{id}/stats.
func (h *AccountHandler) PromotionStats(w http.ResponseWriter, r *http.Request) {
	promotion, err := h.store.GetPromotionByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrPromotionNotFound) {
			apperror.Write(w, apperror.NotFound("Promotion not found"))
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, promotion.Stats())
}

// Convert handles POST /api/clicks/{id}/convert. The converting user
// defaults to the caller.
func (h *AccountHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req dto.ConvertRequest
	if err := decodeJSON(r, &req, true); err != nil {
		apperror.Write(w, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = auth.UserIDFromContext(r.Context())
	}

	click, err := h.converter.MarkConverted(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, tracking.ErrClickNotFound):
			apperror.Write(w, apperror.NotFound("Click not found"))
		case errors.Is(err, tracking.ErrAlreadyConverted):
			apperror.Write(w, apperror.Conflict("Click already converted"))
		default:
			writeError(w, r, h.logger, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, dto.ToConversionResponse(click, userID))
}
