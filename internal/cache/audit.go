package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sitegauge/sitegauge/internal/model"
)

// Cache key prefixes and TTLs.
const (
	auditKeyPrefix    = "audit:"
	negCacheKeySuffix = ":neg"

	// TerminalAuditTTL is the TTL for completed and failed audits. Terminal
	// rows never change again, so only deletion has to invalidate.
	TerminalAuditTTL = 1 * time.Hour

	// ActiveAuditTTL keeps queued and running audits cached just long enough
	// to absorb poll traffic without hiding the terminal transition.
	ActiveAuditTTL = 5 * time.Second

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// auditCacheKey scopes audit entries by owner, so a cached response can
// never be served across users.
func auditCacheKey(userID, auditID string) string {
	return auditKeyPrefix + userID + ":" + auditID
}

// auditTTL picks the TTL for an audit by whether its status is terminal.
func auditTTL(status model.AuditStatus) time.Duration {
	if status.IsTerminal() {
		return TerminalAuditTTL
	}
	return ActiveAuditTTL
}

// GetAudit retrieves a cached audit response for a user.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetAudit(ctx context.Context, userID, auditID string) (*model.AuditResponse, error) {
	key := auditCacheKey(userID, auditID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, ErrCacheMiss
	}

	var resp model.AuditResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, ErrCacheMiss
	}

	return &resp, nil
}

// SetAudit caches an audit response under its owner's key.
func (c *Cache) SetAudit(ctx context.Context, userID string, resp *model.AuditResponse) error {
	key := auditCacheKey(userID, resp.ID)

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal audit response: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, auditTTL(resp.Status))
	// Remove negative cache if exists
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache audit: %w", err)
	}
	return nil
}

// DeleteAudit removes an audit from cache.
func (c *Cache) DeleteAudit(ctx context.Context, userID, auditID string) error {
	key := auditCacheKey(userID, auditID)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete audit from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if an audit ID is in negative cache for a user.
func (c *Cache) IsNegativelyCached(ctx context.Context, userID, auditID string) (bool, error) {
	key := auditCacheKey(userID, auditID) + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks an audit ID as not found for a user.
func (c *Cache) SetNegativeCache(ctx context.Context, userID, auditID string) error {
	key := auditCacheKey(userID, auditID) + negCacheKeySuffix

	err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
