package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the pgx connection pool backing the Relational Store.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns is the maximum pool size.
	MaxConns int32

	// MinConns keeps this many connections warm.
	MinConns int32

	// MaxConnLifetime bounds how long a pooled connection is reused.
	MaxConnLifetime time.Duration
}

// DefaultConfig returns sane pool defaults for a single cloud instance.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
	}
}

// Store is the pgx-backed Relational Store client shared by Edge Fabric,
// the Quota & Session Engine, and the Captive-Portal Pipeline.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates the connection pool and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing pgx pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging relational store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pgx pool for the listener (internal/qse) that
// needs a dedicated, non-pooled LISTEN connection.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close closes the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
