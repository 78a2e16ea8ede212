// Package cache provides the Redis access layer: auth context caching,
// per-plan rate limit buckets, and audit status caching for poll traffic.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pool sizing matches the workload: steady status-poll reads plus
// short bursts when the worker pool finishes a batch of audits.
const (
	poolSize        = 10
	poolMinIdle     = 2
	poolWaitTimeout = 4 * time.Second
	connMaxIdle     = 5 * time.Minute
	bootPingTimeout = 5 * time.Second
)

// Cache provides Redis cache access methods.
type Cache struct {
	client *redis.Client
}

// New connects to Redis at redisURL and verifies the connection
// before returning. A Redis that is down fails boot rather than
// surfacing later as silent cache misses.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = poolSize
	opt.MinIdleConns = poolMinIdle
	opt.PoolTimeout = poolWaitTimeout
	opt.ConnMaxIdleTime = connMaxIdle

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, bootPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client.
// Use sparingly - prefer adding methods to Cache.
func (c *Cache) Client() *redis.Client {
	return c.client
}
