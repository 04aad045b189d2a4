// Package database opens the pgx pool backing the postgres switch
// history store.
package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes the postgres endpoint and pool sizing. Zero values are
// not usable; build one with ConfigFromEnv or fill every field.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	PoolMax      int
	PoolMin      int
	ConnLifetime time.Duration
}

// ConfigFromEnv reads the DB_* environment variables, with defaults that
// match the docker-compose development database.
func ConfigFromEnv() Config {
	return Config{
		Host:         envOr("DB_HOST", "localhost"),
		Port:         envInt("DB_PORT", 5432),
		User:         envOr("DB_USER", "switchpilot"),
		Password:     envOr("DB_PASSWORD", "localdev"),
		Database:     envOr("DB_NAME", "switchpilot"),
		SSLMode:      envOr("DB_SSL_MODE", "disable"),
		PoolMax:      envInt("DB_MAX_OPEN_CONNS", 10),
		PoolMin:      envInt("DB_MAX_IDLE_CONNS", 5),
		ConnLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// DSN returns the postgres connection URL for this config.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Connect builds the pool and verifies the database is reachable before
// handing it out.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.PoolMax) //nolint:gosec // small configured value
	poolCfg.MinConns = int32(cfg.PoolMin) //nolint:gosec // small configured value
	poolCfg.MaxConnLifetime = cfg.ConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
