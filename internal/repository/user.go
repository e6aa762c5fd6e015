package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = auth.ErrUserNotFound
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
	ErrRoleNotFound   = errors.New("role not found")
)

// CreateUser inserts a new user and grants the given roles in one transaction.
func (r *Repository) CreateUser(ctx context.Context, user *model.User, roles ...string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, email, password_hash, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, user.ID, user.Username, user.Email, user.PasswordHash, user.IsActive, user.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				if strings.Contains(constraintName(err), "username") {
					return ErrUsernameExists
				}
				return ErrEmailExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		for _, role := range roles {
			if err := grantRole(ctx, tx, user.ID, role); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole grants a role to a user. Granting an already held role is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, role string) error {
	return grantRole(ctx, r.pool, userID, role)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func grantRole(ctx context.Context, db querier, userID, role string) error {
	tag, err := db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_name)
		SELECT $1, name FROM roles WHERE name = $2
		ON CONFLICT DO NOTHING
	`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to assign role %s: %w", role, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, role).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check role %s: %w", role, err)
		}
		if !exists {
			return ErrRoleNotFound
		}
	}
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByLogin retrieves a user by username or email address.
func (r *Repository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.getUser(ctx, `WHERE username = $1 OR email = lower($1)`, login)
}

func (r *Repository) getUser(ctx context.Context, where string, arg string) (*model.User, error) {
	query := `
		SELECT id, username, email, password_hash, is_active, created_at
		FROM users
	` + where

	var user model.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// SetUserActive enables or disables an account.
func (r *Repository) SetUserActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UserActive reports the account status without loading roles.
func (r *Repository) UserActive(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("failed to load user status: %w", err)
	}
	return active, nil
}

// GetIdentity loads the user's role and permission snapshot.
func (r *Repository) GetIdentity(ctx context.Context, userID string) (*model.Identity, error) {
	query := `
		SELECT u.id, u.username, u.is_active,
			COALESCE(array_agg(r.name ORDER BY r.level) FILTER (WHERE r.name IS NOT NULL), '{}')::text[],
			COALESCE(array_agg(r.level ORDER BY r.level) FILTER (WHERE r.name IS NOT NULL), '{}')::bigint[],
			COALESCE((
				SELECT array_agg(DISTINCT p ORDER BY p)
				FROM user_roles ur2
				JOIN roles r2 ON r2.name = ur2.role_name,
				unnest(r2.permissions) AS p
				WHERE ur2.user_id = u.id
			), '{}')::text[]
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.name = ur.role_name
		WHERE u.id = $1
		GROUP BY u.id
	`

	var (
		identity    model.Identity
		roleNames   []string
		roleLevels  []int64
		permissions []string
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&identity.UserID,
		&identity.Username,
		&identity.IsActive,
		pq.Array(&roleNames),
		pq.Array(&roleLevels),
		pq.Array(&permissions),
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	identity.Roles = make([]model.Role, len(roleNames))
	for i, name := range roleNames {
		level := model.LevelForRole(name)
		if i < len(roleLevels) {
			level = int(roleLevels[i])
		}
		identity.Roles[i] = model.Role{Name: name, Level: level}
	}
	identity.Permissions = permissions
	return &identity, nil
}
