package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

// PoolConfig sizes the database/sql connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig suits a single chat-server instance
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// NewPostgresConnection opens a pool and pings until the server answers or
// ctx expires
func NewPostgresConnection(ctx context.Context, dbURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0 // bounded by ctx

	err = backoff.RetryNotify(
		func() error { return db.PingContext(ctx) },
		backoff.WithContext(policy, ctx),
		func(err error, wait time.Duration) {
			slog.Warn("postgresql not reachable, retrying",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", wait))
		},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgresql: %w", err)
	}

	return db, nil
}
