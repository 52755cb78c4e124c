package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS chat`,
	`CREATE TABLE IF NOT EXISTS chat.users (
		id         TEXT PRIMARY KEY,
		email      TEXT,
		is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat.bans (
		id         UUID PRIMARY KEY,
		kind       TEXT NOT NULL CHECK (kind IN ('user', 'ip')),
		target     TEXT NOT NULL,
		reason     TEXT NOT NULL CHECK (char_length(reason) BETWEEN 5 AND 500),
		banned_by  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		UNIQUE (kind, target)
	)`,
	`CREATE TABLE IF NOT EXISTS chat.ip_usage (
		id          UUID PRIMARY KEY,
		user_id     TEXT NOT NULL,
		address     TEXT NOT NULL,
		email       TEXT,
		recorded_at TIMESTAMPTZ NOT NULL,
		last_used   TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, address)
	)`,
	`CREATE INDEX IF NOT EXISTS ip_usage_address_idx ON chat.ip_usage (address)`,
	`CREATE TABLE IF NOT EXISTS chat.licenses (
		id            UUID PRIMARY KEY,
		key_hash      TEXT NOT NULL UNIQUE,
		key_prefix    TEXT NOT NULL,
		plan          TEXT NOT NULL CHECK (plan IN ('Basic', 'Pro', 'Enterprise')),
		validity_days INTEGER NOT NULL CHECK (validity_days BETWEEN 1 AND 3650),
		issued_at     TIMESTAMPTZ NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL,
		issued_by     TEXT NOT NULL,
		redeemed_by   TEXT,
		redeemed_at   TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS chat.admin_audit_log (
		id         UUID PRIMARY KEY,
		admin_id   TEXT NOT NULL,
		action     TEXT NOT NULL,
		target     TEXT NOT NULL,
		detail     TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS admin_audit_log_admin_idx ON chat.admin_audit_log (admin_id, created_at)`,
}

// EnsureSchema creates the chat schema and its tables when they are missing. Safe to run on every start.
func EnsureSchema(ctx context.Context, exec pgExecutor) error {
	for i, stmt := range schemaStatements {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
