package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/promotrack/promotrack/internal/auth"
	"github.com/promotrack/promotrack/internal/model"
	"github.com/promotrack/promotrack/internal/repository"
)

type output struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		jwtSecret   = flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to sign the bearer token")
		username    = flag.String("username", "admin", "Admin username")
		email       = flag.String("email", "admin@promotrack.local", "Admin email")
		password    = flag.String("password", os.Getenv("ADMIN_PASSWORD"), "Admin password (required for new users)")
		role        = flag.String("role", model.RoleAdmin, "Role to grant (admin or super_admin)")
		ttl         = flag.Duration("ttl", time.Hour, "Token lifetime")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *role != model.RoleAdmin && *role != model.RoleSuperAdmin {
		fmt.Fprintln(os.Stderr, "invalid role; use admin or super_admin")
		os.Exit(1)
	}

	tokens, err := auth.NewTokenManager(*jwtSecret, "promotrack", *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token manager:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	user, err := ensureUser(ctx, repo, *username, *email, *password, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	token, expiresAt, err := tokens.Issue(user)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}

	out := output{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      *role,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// ensureUser returns the user named username, creating it when missing, and
// makes sure it holds role.
func ensureUser(ctx context.Context, repo *repository.Repository, username, email, password, role string) (*model.User, error) {
	existing, err := repo.GetUserByLogin(ctx, username)
	if err == nil {
		if !strings.EqualFold(existing.Email, email) {
			return nil, fmt.Errorf("user %s exists with different email: %s", username, existing.Email)
		}
		if err := repo.AssignRole(ctx, existing.ID, role); err != nil {
			return nil, fmt.Errorf("assign role: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if len(password) < 8 {
		return nil, errors.New("password of at least 8 characters is required for a new user")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user, role); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
