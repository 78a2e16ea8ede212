package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sitegauge/sitegauge/internal/model"
)

const (
	// authCachePrefix is the Redis key prefix for auth context cache.
	authCachePrefix = "auth:ctx:"
	// authUserKeysPrefix is the Redis key prefix for the per-user set of
	// cached auth context keys. Key rotation deletes through this set.
	authUserKeysPrefix = "auth:userkeys:"
	// authCacheTTL is the time-to-live for cached auth contexts.
	authCacheTTL = 5 * time.Minute
	// authUserKeysTTL outlives authCacheTTL so the set always covers
	// every live context entry.
	authUserKeysTTL = 15 * time.Minute
)

// CachedAuthContext represents auth context stored in Redis.
type CachedAuthContext struct {
	UserID    string `json:"user_id"`
	KeyPrefix string `json:"key_prefix"`
	Plan      string `json:"plan"`
}

// GetAuthContext retrieves a cached auth context by cache key.
// Returns nil if not found (cache miss).
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	key := authCachePrefix + cacheKey

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached CachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		UserID:    cached.UserID,
		KeyPrefix: cached.KeyPrefix,
		Plan:      cached.Plan,
	}, nil
}

// SetAuthContext caches an auth context and records the cache key in the
// user's key set so rotation can invalidate it.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	key := authCachePrefix + cacheKey

	cached := CachedAuthContext{
		UserID:    auth.UserID,
		KeyPrefix: auth.KeyPrefix,
		Plan:      auth.Plan,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	setKey := authUserKeysPrefix + auth.UserID

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, authCacheTTL)
	pipe.SAdd(ctx, setKey, cacheKey)
	pipe.Expire(ctx, setKey, authUserKeysTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache auth context: %w", err)
	}
	return nil
}

// InvalidateUserAuthContexts removes every cached auth context for a user.
// Called on key rotation and on plan changes so stale contexts cannot
// outlive the credential or the plan they were minted under.
func (c *Cache) InvalidateUserAuthContexts(ctx context.Context, userID string) error {
	setKey := authUserKeysPrefix + userID

	cacheKeys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("list auth cache keys: %w", err)
	}

	keys := make([]string, 0, len(cacheKeys)+1)
	for _, ck := range cacheKeys {
		keys = append(keys, authCachePrefix+ck)
	}
	keys = append(keys, setKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate auth contexts: %w", err)
	}
	return nil
}
