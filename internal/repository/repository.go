// Package repository provides database access for users and audits.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool bounds sized for the API handlers plus the audit worker pool;
// both draw from the same pool, so MaxConns must cover worst-case
// handler concurrency with workers mid-transaction.
const (
	poolMaxConns    = 10
	poolMinConns    = 2
	bootPingTimeout = 5 * time.Second
)

// Repository provides database access methods.
type Repository struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against databaseURL and verifies it with
// a bounded ping so a misconfigured database fails boot immediately.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = poolMaxConns
	config.MinConns = poolMinConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, bootPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool.
// Use sparingly - prefer adding methods to Repository.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
