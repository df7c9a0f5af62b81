// Package database owns the pgx pool behind the postgres session store.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
	log  *slog.Logger
}

type Options struct {
	URL      string
	MaxConns int32
	MinConns int32
	// ProbeTimeout bounds the initial ping. Defaults to 3s.
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Open connects and pings. A session client holds few connections and may
// sit idle for long stretches, so idle connections are released quickly.
func Open(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns >= 0 && opts.MinConns <= cfg.MaxConns {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnLifetime = 15 * time.Minute
	cfg.MaxConnIdleTime = time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	probe := opts.ProbeTimeout
	if probe <= 0 {
		probe = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, probe)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{Pool: pool, log: log.With("component", "database")}
	db.log.Info("database connected", "max_conns", cfg.MaxConns, "min_conns", cfg.MinConns)
	return db, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}
