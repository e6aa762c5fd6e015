package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/promotrack/promotrack/internal/apperror"
	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/handler/dto"
	"github.com/promotrack/promotrack/internal/middleware"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/repository"
	"github.com/promotrack/promotrack/internal/tracking"
)

// Registration limits.
const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// AccountStore creates and looks up users.
type AccountStore interface {
	CreateUser(ctx context.Context, user *model.User, roles ...string) error
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
}

// Converter attributes a signup to a tracked click.
type Converter interface {
	MarkConverted(ctx context.Context, clickID, userID string) (*model.Click, error)
}

// AuthHandler handles login and registration.
type AuthHandler struct {
	users     AccountStore
	tokens    *auth.TokenManager
	converter Converter
	params    auth.Params
	logger    *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. converter may be nil.
func NewAuthHandler(users AccountStore, tokens *auth.TokenManager, converter Converter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		tokens:    tokens,
		converter: converter,
		params:    auth.DefaultParams,
		logger:    logger.With("component", "auth"),
	}
}

// WithPasswordParams overrides the Argon2id costs used for new accounts.
func (h *AuthHandler) WithPasswordParams(p auth.Params) *AuthHandler {
	h.params = p
	return h
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		apperror.Write(w, err)
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		apperror.Write(w, apperror.BadRequest("login and password are required"))
		return
	}

	user, err := h.users.GetUserByLogin(r.Context(), strings.TrimSpace(req.Login))
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, r, h.logger, err)
			return
		}
		auth.BurnVerification(req.Password)
		h.rejectLogin(w, r, "invalid_credentials")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		h.rejectLogin(w, r, "invalid_credentials")
		return
	}
	if !user.IsActive {
		h.rejectLogin(w, r, "inactive_user")
		return
	}

	h.writeToken(w, r, http.StatusOK, user, false)
}

func (h *AuthHandler) rejectLogin(w http.ResponseWriter, r *http.Request, reason string) {
	h.logger.Warn("login failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	apperror.Write(w, apperror.Unauthenticated(reason, "Invalid credentials"))
}

// Register handles POST /api/auth/register. A click_id in the body marks
// that click converted; a stale or reused click never fails the signup.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		apperror.Write(w, err)
		return
	}
	if err := validateRegistration(&req); err != nil {
		apperror.Write(w, err)
		return
	}

	hash, err := auth.HashPasswordWithParams(req.Password, h.params)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.users.CreateUser(r.Context(), user, model.RoleUser); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			apperror.Write(w, apperror.Conflict("Username already taken"))
		case errors.Is(err, repository.ErrEmailExists):
			apperror.Write(w, apperror.Conflict("Email already registered"))
		default:
			writeError(w, r, h.logger, err)
		}
		return
	}

	h.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)

	converted := h.convert(r, req.ClickID, user.ID)
	h.writeToken(w, r, http.StatusCreated, user, converted)
}

func (h *AuthHandler) convert(r *http.Request, clickID, userID string) bool {
	if clickID == "" || h.converter == nil {
		return false
	}

	_, err := h.converter.MarkConverted(r.Context(), clickID, userID)
	if err == nil {
		return true
	}

	level := slog.LevelWarn
	if !errors.Is(err, tracking.ErrClickNotFound) && !errors.Is(err, tracking.ErrAlreadyConverted) {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "signup conversion skipped",
		slog.String("error", err.Error()),
		slog.String("click_id", clickID),
		slog.String("user_id", userID),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	return false
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, r *http.Request, status int, user *model.User, converted bool) {
	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        dto.ToUserResponse(user),
		Converted:   converted,
	})
}

func validateRegistration(req *dto.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if !usernamePattern.MatchString(req.Username) {
		return apperror.BadRequest("username must be 3-32 letters, digits or underscores")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return apperror.BadRequest("email is invalid")
	}
	if len(req.Password) < minPasswordLength || len(req.Password) > maxPasswordLength {
		return apperror.BadRequest("password must be 8-128 characters")
	}
	return nil
}
