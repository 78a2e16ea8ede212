package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sitegauge/sitegauge/internal/model"
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

const advisoryLockID int64 = 640640

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

// ResetUsersSchema drops and recreates the users schema for tests.
func ResetUsersSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000001_users")
}

// ResetAuditsSchema drops and recreates the audits schema for tests.
func ResetAuditsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000002_audits")
}

// ResetWebhooksSchema drops and recreates the webhook subscriptions
// schema for tests.
func ResetWebhooksSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000003_webhooks")
}

func resetSchema(ctx context.Context, pool *pgxpool.Pool, migration string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downPath := filepath.Join(root, "migrations", migration+".down.sql")
	upPath := filepath.Join(root, "migrations", migration+".up.sql")

	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration %s: %w", migration, err)
	}

	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration %s: %w", migration, err)
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

// NewTestUser creates a test user on the free plan.
func NewTestUser(t testing.TB, email string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		ID:           UniqueID("user"),
		Email:        email,
		PasswordHash: "argon2id-test-hash",
		Plan:         model.PlanFree,
		AuditCount:   0,
		PeriodStart:  now,
		APIKeyHash:   fmt.Sprintf("hash-%d", now.UnixNano()),
		APIKeyPrefix: "ak_test_",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestUserWithPlan creates a test user on a specific plan.
func NewTestUserWithPlan(t testing.TB, email, plan string) *model.User {
	t.Helper()
	u := NewTestUser(t, email)
	u.Plan = plan
	return u
}

// NewTestAudit creates a queued test audit with sensible defaults.
func NewTestAudit(t testing.TB, userID string) *model.Audit {
	t.Helper()
	now := time.Now().UTC()
	return &model.Audit{
		ID:        UniqueID("audit"),
		UserID:    userID,
		URL:       "https://example.com",
		Status:    model.AuditStatusQueued,
		CreatedAt: now,
	}
}

// NewTestResults returns a minimal results document for completed audits.
func NewTestResults(t testing.TB, score int) json.RawMessage {
	t.Helper()
	return json.RawMessage(fmt.Sprintf(`{"score":%d,"checks":[]}`, score))
}

// NewTestSubscription creates an active test subscription covering all
// audit events.
func NewTestSubscription(t testing.TB, userID string) *model.Subscription {
	t.Helper()
	now := time.Now().UTC()
	return &model.Subscription{
		ID:        UniqueID("sub"),
		UserID:    userID,
		TargetURL: "https://example.com/hooks",
		Secret:    "whs_" + UniqueID("secret"),
		Events:    []model.EventType{model.EventAuditCompleted, model.EventAuditFailed},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UniqueEmail generates a unique email address for tests.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.test", prefix, time.Now().UnixNano())
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
