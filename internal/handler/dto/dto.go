// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/promotrack/promotrack/internal/model"
)

// LoginRequest represents the request body for POST /api/auth/login.
type LoginRequest struct {
	Login    string `json:"login"` // username or email
	Password string `json:"password"`
}

// RegisterRequest represents the request body for POST /api/auth/register.
// ClickID attributes the signup to a tracked promotion click.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	ClickID  string `json:"click_id,omitempty"`
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        *UserResponse `json:"user"`
	// Converted is set on register when the click_id was attributed.
	Converted bool `json:"converted,omitempty"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileResponse represents the caller's identity.
type ProfileResponse struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Level       int      `json:"level"`
}

// ConversionResponse is returned by POST /api/clicks/{id}/convert.
type ConversionResponse struct {
	ClickID     string     `json:"click_id"`
	PromotionID string     `json:"promotion_id"`
	UserID      string     `json:"user_id"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
}

// ConvertRequest represents the optional body of the convert endpoint.
// UserID defaults to the caller.
type ConvertRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// ListResponse wraps a list with its total.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// ToUserResponse converts a User model to UserResponse DTO.
func ToUserResponse(u *model.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// ToProfileResponse converts an Identity to ProfileResponse DTO.
func ToProfileResponse(identity *model.Identity) *ProfileResponse {
	perms := identity.Permissions
	if perms == nil {
		perms = []string{}
	}
	return &ProfileResponse{
		UserID:      identity.UserID,
		Username:    identity.Username,
		Roles:       identity.RoleNames(),
		Permissions: perms,
		Level:       identity.BestLevel(),
	}
}

// ToConversionResponse converts a converted Click to ConversionResponse DTO.
func ToConversionResponse(click *model.Click, userID string) *ConversionResponse {
	return &ConversionResponse{
		ClickID:     click.ID,
		PromotionID: click.PromotionID,
		UserID:      userID,
		ConvertedAt: click.ConvertedAt,
	}
}

// NewList builds a ListResponse, never with a nil slice.
func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Data: items, Total: len(items)}
}
