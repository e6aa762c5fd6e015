package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/promotrack/promotrack/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema applies every down migration in reverse order, then every up
// migration in order.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downs, err := filepath.Glob(filepath.Join(root, "migrations", "*.down.sql"))
	if err != nil {
		return fmt.Errorf("list down migrations: %w", err)
	}
	ups, err := filepath.Glob(filepath.Join(root, "migrations", "*.up.sql"))
	if err != nil {
		return fmt.Errorf("list up migrations: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))
	sort.Strings(ups)

	for _, path := range append(downs, ups...) {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates an active test user. The password hash is a
// placeholder; tests that log in should hash a real password.
func NewTestUser(t testing.TB, username string) *model.User {
	t.Helper()
	return &model.User{
		ID:           UniqueID("user"),
		Username:     username,
		Email:        strings.ToLower(username) + "@example.com",
		PasswordHash: "unused",
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewTestServer creates a test server owned by ownerID.
func NewTestServer(t testing.TB, ownerID string) *model.Server {
	t.Helper()
	return &model.Server{
		ID:        UniqueID("server"),
		OwnerID:   ownerID,
		Name:      "Test Server",
		Website:   "https://play.example.com",
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestPromotion creates an active promotion for server, owned by the
// server's owner.
func NewTestPromotion(t testing.TB, server *model.Server, code string) *model.Promotion {
	t.Helper()
	now := time.Now().UTC()
	return &model.Promotion{
		ID:            UniqueID("promo"),
		ServerID:      server.ID,
		UserID:        server.OwnerID,
		Code:          code,
		Status:        model.PromotionStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		ServerWebsite: server.Website,
	}
}

// NewTestClick creates a click on p from the given IP and fingerprint.
func NewTestClick(t testing.TB, p *model.Promotion, ip, fingerprint string) *model.Click {
	t.Helper()
	return &model.Click{
		ID:          UniqueID("click"),
		PromotionID: p.ID,
		ServerID:    p.ServerID,
		VisitorIP:   ip,
		Fingerprint: fingerprint,
		UserAgent:   BrowserUserAgent,
		DeviceType:  model.DeviceDesktop,
		CreatedAt:   time.Now().UTC(),
	}
}

// BrowserUserAgent is a desktop browser user agent that passes bot checks.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var seq atomic.Int64

// UniqueCode generates a unique promotion code that satisfies the code format.
func UniqueCode(prefix string) string {
	return prefix + strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatInt(seq.Add(1), 36)
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}
