package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"loginsight/internal/config"
)

// openPool opens a Postgres pool sized from config, pinging once before
// returning so callers fail fast on a bad DSN rather than on first query.
func openPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewPostgresFromConfig opens a pool per config and wraps it as a Postgres
// event store and repository set.
func NewPostgresFromConfig(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPostgres(pool), nil
}
