package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// token_index is nullable: rows written before the column existed are
// found by a linear scan and backfilled on their first successful
// refresh.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS restaurants (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		restaurant_id TEXT NOT NULL REFERENCES restaurants (id),
		name          TEXT NOT NULL,
		email         TEXT,
		password_hash BYTEA,
		role          TEXT NOT NULL,
		permissions   TEXT[] NOT NULL DEFAULT '{}',
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		avatar_url    TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx
		ON users (lower(email)) WHERE email IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS auth_sessions (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		token_hash  BYTEA NOT NULL,
		token_index TEXT,
		expires_at  TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS auth_sessions_token_index_idx
		ON auth_sessions (token_index) WHERE token_index IS NOT NULL`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
