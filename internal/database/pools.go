package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/config"
)

// Pools holds the receiver's storage connections.
type Pools struct {
	// Postgres holds the durable tick ledger.
	Postgres *pgxpool.Pool

	// Redis holds the fast path: latest hashes, per-day series and the
	// raw tick stream.
	Redis *redis.Client
}

// NewPools connects both stores and verifies them.
func NewPools(ctx context.Context, db config.DatabaseConfig, rd config.RedisConfig) (*Pools, error) {
	pg, err := Connect(ctx, db.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb, err := ConnectRedis(ctx, rd)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &Pools{
		Postgres: pg,
		Redis:    rdb,
	}, nil
}

// Connect creates a single PostgreSQL connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// ConnectRedis creates a Redis client and verifies the connection.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// Close closes both connections.
func (p *Pools) Close() {
	if p.Postgres != nil {
		p.Postgres.Close()
	}
	if p.Redis != nil {
		p.Redis.Close()
	}
}

// Ping verifies both connections are healthy.
func (p *Pools) Ping(ctx context.Context) error {
	if err := p.Postgres.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := p.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
