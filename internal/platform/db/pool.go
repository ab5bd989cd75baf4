package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RetryPolicy controls how often Connect retries a failed pool creation.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Connect creates a pool, retrying while the database is not yet reachable.
// It gives up after the configured number of attempts or when ctx is done.
func Connect(ctx context.Context, logger zerolog.Logger, databaseURL string, maxConns, minConns int32, policy RetryPolicy) (*pgxpool.Pool, error) {
	return connectWith(ctx, logger, policy, func(ctx context.Context) (*pgxpool.Pool, error) {
		return NewPool(ctx, databaseURL, maxConns, minConns)
	})
}

func connectWith[T any](ctx context.Context, logger zerolog.Logger, policy RetryPolicy, open func(context.Context) (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := open(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("database connection established")
			}
			return conn, nil
		}
		lastErr = err
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("database connect attempt failed")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("connect to database: %w", ctx.Err())
		case <-time.After(policy.Delay):
		}
	}
	return zero, fmt.Errorf("could not connect to database after %d attempts: %w", attempts, lastErr)
}
