// Package postgres provides Postgres-backed persistence for the worker
// registry, target collection and raw post sink.
//
// Expected schema:
//
//	CREATE TABLE workers (
//		id TEXT PRIMARY KEY,
//		platform TEXT NOT NULL,
//		status TEXT NOT NULL DEFAULT 'idle',
//		requests_today INT NOT NULL DEFAULT 0,
//		last_used_at TIMESTAMPTZ,
//		quarantine_until TIMESTAMPTZ,
//		ban_reason TEXT NOT NULL DEFAULT '',
//		credentials_ref TEXT NOT NULL
//	);
//
//	CREATE TABLE targets (
//		id TEXT PRIMARY KEY,
//		user_id TEXT NOT NULL,
//		platform TEXT NOT NULL,
//		type TEXT NOT NULL,
//		term TEXT NOT NULL,
//		status TEXT NOT NULL DEFAULT 'active',
//		next_scrape_at TIMESTAMPTZ NOT NULL,
//		last_scraped_at TIMESTAMPTZ,
//		leads_found INT NOT NULL DEFAULT 0
//	);
//
//	CREATE TABLE raw_posts (
//		platform TEXT NOT NULL,
//		post_id TEXT NOT NULL,
//		target_id TEXT NOT NULL,
//		user_id TEXT NOT NULL,
//		text TEXT NOT NULL,
//		author TEXT NOT NULL DEFAULT '',
//		author_handle TEXT NOT NULL DEFAULT '',
//		posted_at TIMESTAMPTZ,
//		url TEXT NOT NULL DEFAULT '',
//		processed BOOLEAN NOT NULL DEFAULT FALSE,
//		fetched_at TIMESTAMPTZ NOT NULL,
//		blob_uri TEXT NOT NULL DEFAULT '',
//		PRIMARY KEY (platform, post_id)
//	);
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbConn is the slice of pgxpool.Pool the stores use; pgxmock satisfies it.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx connection pool from the provided config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
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
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
