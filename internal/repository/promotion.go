package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/rbac"
)

// Common errors for promotion repository operations.
var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrServerNotFound    = errors.New("server not found")
	ErrCodeExists        = errors.New("promotion code already exists")
)

const promotionColumns = `
	p.id, p.server_id, p.user_id, p.code, p.status, COALESCE(p.target_url, ''), p.expires_at,
	p.click_count, p.unique_click_count, p.conversion_count, p.created_at, p.updated_at,
	COALESCE(s.website, '')
`

// CreateServer inserts a new server.
func (r *Repository) CreateServer(ctx context.Context, server *model.Server) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO servers (id, owner_id, name, website, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, server.ID, server.OwnerID, server.Name, nullableString(server.Website), server.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return nil
}

// GetServerByID retrieves a server by its ID.
func (r *Repository) GetServerByID(ctx context.Context, id string) (*model.Server, error) {
	var server model.Server
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, COALESCE(website, ''), created_at
		FROM servers
		WHERE id = $1
	`, id).Scan(&server.ID, &server.OwnerID, &server.Name, &server.Website, &server.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return &server, nil
}

// CreatePromotion inserts a new promotion.
func (r *Repository) CreatePromotion(ctx context.Context, p *model.Promotion) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO promotions (id, server_id, user_id, code, status, target_url, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.ServerID, p.UserID, p.Code, p.Status, nullableString(p.TargetURL), p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create promotion: %w", err)
	}
	return nil
}

// GetPromotionByCode retrieves a promotion and its server website by code.
func (r *Repository) GetPromotionByCode(ctx context.Context, code string) (*model.Promotion, error) {
	return r.getPromotion(ctx, `p.code = $1`, code)
}

// GetPromotionByID retrieves a promotion by its ID.
func (r *Repository) GetPromotionByID(ctx context.Context, id string) (*model.Promotion, error) {
	return r.getPromotion(ctx, `p.id = $1`, id)
}

func (r *Repository) getPromotion(ctx context.Context, where, arg string) (*model.Promotion, error) {
	query := `SELECT ` + promotionColumns + `
		FROM promotions p
		JOIN servers s ON s.id = p.server_id
		WHERE ` + where

	var p model.Promotion
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.ServerID,
		&p.UserID,
		&p.Code,
		&p.Status,
		&p.TargetURL,
		&p.ExpiresAt,
		&p.ClickCount,
		&p.UniqueClickCount,
		&p.ConversionCount,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ServerWebsite,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromotionNotFound
		}
		return nil, fmt.Errorf("failed to get promotion: %w", err)
	}
	return &p, nil
}

// UpdatePromotionStatus changes a promotion's lifecycle status.
func (r *Repository) UpdatePromotionStatus(ctx context.Context, id string, status model.PromotionStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE promotions SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update promotion status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromotionNotFound
	}
	return nil
}

// ServerOwner returns the owner id of a server. Unknown servers match both
// ErrServerNotFound and rbac.ErrResourceNotFound.
func (r *Repository) ServerOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT owner_id FROM servers WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %w", ErrServerNotFound, rbac.ErrResourceNotFound)
		}
		return "", fmt.Errorf("failed to get server owner: %w", err)
	}
	return owner, nil
}

// PromotionOwner returns the owner id of a promotion. Unknown promotions match
// both ErrPromotionNotFound and rbac.ErrResourceNotFound.
func (r *Repository) PromotionOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM promotions WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %w", ErrPromotionNotFound, rbac.ErrResourceNotFound)
		}
		return "", fmt.Errorf("failed to get promotion owner: %w", err)
	}
	return owner, nil
}
