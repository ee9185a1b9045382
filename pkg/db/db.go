// Package db owns the Postgres connection pool and schema migrations for
// the service, following the teacher's pgxpool-based connection setup.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// defaultMigrationsDir is relative to the process working directory, which
// is the repository root when run via `go run ./cmd/server` or the built
// binary's deploy layout.
const defaultMigrationsDir = "internal/platform/db/migrations"

// Config controls pool sizing and lifetimes, mirroring the fields the
// teacher hardcodes at startup but made overridable here.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// MigrationsDir overrides defaultMigrationsDir; empty uses the default.
	MigrationsDir string
}

// DB wraps the live connection pool plus the DSN needed to run migrations
// through database/sql (goose's migration runner, unlike the rest of the
// application, talks to database/sql rather than pgx directly).
type DB struct {
	Pool          *pgxpool.Pool
	dsn           string
	migrationsDir string
	logger        *slog.Logger
}

// New parses cfg.DSN, applies the pool settings and opens the connection.
func New(cfg Config, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
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
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolCfg.HealthCheckPeriod = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	migrationsDir := cfg.MigrationsDir
	if migrationsDir == "" {
		migrationsDir = defaultMigrationsDir
	}

	return &DB{Pool: pool, dsn: cfg.DSN, migrationsDir: migrationsDir, logger: logger}, nil
}

// RunMigrations applies every pending goose migration under migrationsDir.
func (d *DB) RunMigrations() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	sqlDB, err := sql.Open("pgx", d.dsn)
	if err != nil {
		return fmt.Errorf("open sql.DB for migrations: %w", err)
	}
	defer sqlDB.Close()

	if err := goose.Up(sqlDB, d.migrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Health verifies the pool can still reach the database, used by the
// /health and /health/details endpoints.
func (d *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return d.Pool.Ping(ctx)
}

// Close releases the pool's connections.
func (d *DB) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}
