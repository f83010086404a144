package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps a pgx connection pool with health checking capabilities.
type Pool struct {
	*pgxpool.Pool
}

// New creates a connection pool from a URL. Returns nil if the URL is empty
// (Postgres not configured; callers fall back to in-memory stores).
func New(ctx context.Context, url string) (*Pool, error) {
	if url == "" {
		return nil, nil
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Health checks if the database connection is healthy.
func (p *Pool) Health(ctx context.Context) error {
	return p.Ping(ctx)
}
