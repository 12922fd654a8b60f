package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the pgx pool holding guild configuration records
type DB struct {
	*pgxpool.Pool
}

// NewConnection opens a pool pinned to UTC and verifies it with a ping
func NewConnection(ctx context.Context, databaseURL string) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the pool
func (db *DB) Close() {
	db.Pool.Close()
}

// ConstructDatabaseURL joins a server URL and a database name, keeping any
// query string and defaulting sslmode to disable. An empty name returns the
// base URL untouched.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	base, query, hasQuery := strings.Cut(strings.TrimRight(baseURL, "/"), "?")
	url := base + "/" + databaseName
	if hasQuery {
		url += "?" + query
	}

	if !strings.Contains(url, "sslmode=") {
		if hasQuery {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}

	return url
}
