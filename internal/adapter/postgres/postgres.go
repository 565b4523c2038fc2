// Package postgres provides the warehouse connection pool and SQL executor.
package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-delivery/atlas/internal/config"
)

// NewPool creates a pgxpool connection pool from a config.Postgres struct.
// When cfg.TokenFile is set, the file is re-read before each new connection
// so rotated OAuth tokens take effect without a restart.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheck

	if cfg.TokenFile != "" {
		tokenFile := cfg.TokenFile
		poolCfg.BeforeConnect = func(_ context.Context, cc *pgx.ConnConfig) error {
			token, err := os.ReadFile(tokenFile) //nolint:gosec // G304: path comes from config
			if err != nil {
				return fmt.Errorf("read token file: %w", err)
			}
			cc.Password = strings.TrimSpace(string(token))
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}
