package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"thirdcoast.systems/reelfeed/internal/config"
)

var (
	dbOpenBackoffBase  = 1 * time.Second
	dbOpenBackoffScale = 1.618
)

// OpenDBPoolWithRetry initializes a new PostgreSQL connection pool with retry logic.
func OpenDBPoolWithRetry(ctx context.Context, conf config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var lastErr error

	cfg, err := pgxpool.ParseConfig(conf.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	slog.Info("Connecting to database", "host", cfg.ConnConfig.Host)
	for i := 0; i < conf.DatabaseRetries; i++ {
		if pool, err = pgxpool.NewWithConfig(ctx, cfg); err == nil {
			break
		}
		lastErr = err

		backoff := time.Duration(float64(dbOpenBackoffBase) * math.Pow(dbOpenBackoffScale, float64(i)))
		slog.Warn("database connect failed, retrying", "backoff", backoff, "error", err)
		time.Sleep(backoff)
	}

	if pool == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("failed to connect to database after multiple attempts: %w", lastErr)
		}
		return nil, fmt.Errorf("failed to connect to database after multiple attempts")
	}

	for i := 0; i < conf.DatabaseRetries; i++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)

		if err = pool.Ping(pingCtx); err == nil {
			cancel()
			slog.Info("Database reachable", "host", cfg.ConnConfig.Host)
			return pool, nil
		}
		cancel()
		lastErr = err

		backoff := time.Duration(float64(dbOpenBackoffBase) * math.Pow(dbOpenBackoffScale, float64(i)))
		slog.Warn("database ping failed, retrying", "backoff", backoff, "error", err)
		time.Sleep(backoff)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("failed to ping database after multiple attempts: %w", lastErr)
	}
	return nil, fmt.Errorf("failed to ping database after multiple attempts")
}
