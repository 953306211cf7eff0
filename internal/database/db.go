// Package database persists the event history (intents, fills, closed
// lots) to PostgreSQL. The store is optional: a nil *DB disables
// persistence without branching at the call sites.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
	log  *logging.Logger
}

// NewDB connects, pings and migrates. Returns (nil, nil) when the
// database is disabled in configuration.
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{Pool: pool, log: logging.WithComponent("database")}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	db.log.Info("connected to postgres", "database", cfg.Database)
	return db, nil
}

// Close releases the pool. Safe on nil.
func (db *DB) Close() {
	if db == nil || db.Pool == nil {
		return
	}
	db.Pool.Close()
}

func (db *DB) runMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS intents (
			event_id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			reference_price DECIMAL(20, 8) NOT NULL,
			target_lots TEXT,
			stage VARCHAR(20),
			dedupe_key VARCHAR(64) NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_symbol_ts ON intents(symbol, ts)`,

		`CREATE TABLE IF NOT EXISTS fills (
			event_id VARCHAR(64) PRIMARY KEY,
			intent_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(20) NOT NULL,
			status VARCHAR(10) NOT NULL,
			fill_price DECIMAL(20, 8) NOT NULL,
			filled_size DECIMAL(20, 8) NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_symbol_ts ON fills(symbol, ts)`,

		`CREATE TABLE IF NOT EXISTS closed_lots (
			lot_id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			stage VARCHAR(20),
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			exit_action VARCHAR(20) NOT NULL,
			entry_ts TIMESTAMPTZ NOT NULL,
			exit_ts TIMESTAMPTZ NOT NULL,
			pnl DECIMAL(20, 8) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_lots_symbol ON closed_lots(symbol, exit_ts)`,
	}

	for i, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
