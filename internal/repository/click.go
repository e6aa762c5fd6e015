package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/promotrack/promotrack/internal/model"
)

// Common errors for click repository operations.
var (
	ErrClickNotFound    = errors.New("click not found")
	ErrAlreadyConverted = errors.New("click already converted")
)

// RecordClick stores a click and bumps the promotion counters in one
// transaction. IsUnique is computed here against the last 24 hours of clicks
// from the same fingerprint (or IP when no fingerprint is known).
func (r *Repository) RecordClick(ctx context.Context, click *model.Click) error {
	var utm []byte
	if len(click.UTMParams) > 0 {
		var err error
		if utm, err = json.Marshal(click.UTMParams); err != nil {
			return fmt.Errorf("marshal utm params: %w", err)
		}
	}

	dedupColumn := "fingerprint"
	if click.Fingerprint == "" {
		dedupColumn = "visitor_ip"
	}
	since := click.CreatedAt.Add(-model.UniqueLookback)

	return r.inTx(ctx, func(tx pgx.Tx) error {
		// Serialize concurrent clicks from one visitor on one promotion so the
		// uniqueness check and the insert cannot interleave.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			click.PromotionID+":"+click.DedupKey()); err != nil {
			return fmt.Errorf("lock visitor: %w", err)
		}

		var seen bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM promotion_clicks
				WHERE promotion_id = $1 AND `+dedupColumn+` = $2 AND created_at > $3
			)
		`, click.PromotionID, click.DedupKey(), since).Scan(&seen)
		if err != nil {
			return fmt.Errorf("check unique click: %w", err)
		}
		click.IsUnique = !seen

		_, err = tx.Exec(ctx, `
			INSERT INTO promotion_clicks (
				id, promotion_id, server_id, visitor_ip, fingerprint, user_agent, referrer_url,
				utm_params, device_type, country_code, is_suspected_fraud, is_unique, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			click.ID,
			click.PromotionID,
			click.ServerID,
			click.VisitorIP,
			nullableString(click.Fingerprint),
			nullableString(click.UserAgent),
			nullableString(click.ReferrerURL),
			utm,
			click.DeviceType,
			nullableString(click.CountryCode),
			click.IsSuspectedFraud,
			click.IsUnique,
			click.CreatedAt,
		)
		if err != nil {
			// The promotion was deleted after the caller looked it up.
			if isForeignKeyViolation(err) {
				return ErrPromotionNotFound
			}
			return fmt.Errorf("insert click: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE promotions
			SET click_count = click_count + 1,
				unique_click_count = unique_click_count + CASE WHEN $2 THEN 1 ELSE 0 END,
				updated_at = NOW()
			WHERE id = $1
		`, click.PromotionID, click.IsUnique)
		if err != nil {
			return fmt.Errorf("increment click counters: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrPromotionNotFound
		}
		return nil
	})
}

// MarkConverted attributes a registration to a click. It succeeds at most
// once per click and bumps the promotion's conversion_count in the same
// transaction.
func (r *Repository) MarkConverted(ctx context.Context, clickID, userID string) (*model.Click, error) {
	click := &model.Click{ID: clickID, ConvertedUserID: userID, IsConverted: true}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var convertedAt time.Time
		err := tx.QueryRow(ctx, `
			UPDATE promotion_clicks
			SET is_converted = TRUE, converted_user_id = $2, converted_at = NOW()
			WHERE id = $1 AND is_converted = FALSE
			RETURNING promotion_id, server_id, converted_at
		`, clickID, nullableString(userID)).Scan(&click.PromotionID, &click.ServerID, &convertedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM promotion_clicks WHERE id = $1)`, clickID).Scan(&exists); err != nil {
				return fmt.Errorf("check click: %w", err)
			}
			if exists {
				return ErrAlreadyConverted
			}
			return ErrClickNotFound
		}
		if err != nil {
			return fmt.Errorf("mark click converted: %w", err)
		}
		click.ConvertedAt = &convertedAt

		if _, err := tx.Exec(ctx, `
			UPDATE promotions
			SET conversion_count = conversion_count + 1, updated_at = NOW()
			WHERE id = $1
		`, click.PromotionID); err != nil {
			return fmt.Errorf("increment conversion count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return click, nil
}

// GetClickByID retrieves a click by its ID.
func (r *Repository) GetClickByID(ctx context.Context, id string) (*model.Click, error) {
	var (
		c           model.Click
		fingerprint *string
		userAgent   *string
		referrer    *string
		utm         []byte
		country     *string
		convertedBy *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, promotion_id, server_id, visitor_ip, fingerprint, user_agent, referrer_url,
			utm_params, device_type, country_code, is_suspected_fraud, is_unique,
			is_converted, converted_user_id, converted_at, created_at
		FROM promotion_clicks
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.PromotionID, &c.ServerID, &c.VisitorIP, &fingerprint, &userAgent, &referrer,
		&utm, &c.DeviceType, &country, &c.IsSuspectedFraud, &c.IsUnique,
		&c.IsConverted, &convertedBy, &c.ConvertedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClickNotFound
		}
		return nil, fmt.Errorf("failed to get click: %w", err)
	}

	c.Fingerprint = deref(fingerprint)
	c.UserAgent = deref(userAgent)
	c.ReferrerURL = deref(referrer)
	c.CountryCode = deref(country)
	c.ConvertedUserID = deref(convertedBy)
	if len(utm) > 0 {
		_ = json.Unmarshal(utm, &c.UTMParams)
	}
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
