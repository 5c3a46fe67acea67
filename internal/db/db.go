package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect establishes a connection pool to the database and returns the pool
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Ping the database to verify connection
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS mailboxes (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		api_key     TEXT NOT NULL,
		target_url  TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		tracking_number TEXT PRIMARY KEY,
		mailbox_id      TEXT NOT NULL REFERENCES mailboxes(id),
		payload         JSONB NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_attempts (
		id              BIGSERIAL PRIMARY KEY,
		tracking_number TEXT NOT NULL,
		attempt_number  INT NOT NULL,
		status          TEXT NOT NULL,
		error           TEXT,
		attempted_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_mailbox ON webhook_events(mailbox_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_tracking ON webhook_attempts(tracking_number)`,
}

// EnsureSchema creates the relay tables and indexes if they do not exist.
// Statements are idempotent so startup runs this unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
