package serverstore

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id SERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		address TEXT NOT NULL DEFAULT '',
		short_device_id TEXT NOT NULL DEFAULT '',
		device INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		request_data TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions (created_at) WHERE status <> 7`,
	`CREATE TABLE IF NOT EXISTS invitees (
		id SERIAL PRIMARY KEY,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		address TEXT NOT NULL DEFAULT '',
		device INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		inviter_short_device_id TEXT NOT NULL DEFAULT '',
		request_data TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invitees_session ON invitees (session_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id SERIAL PRIMARY KEY,
		recipient INTEGER NOT NULL,
		session_id INTEGER NOT NULL,
		invitee_id INTEGER NOT NULL DEFAULT -1,
		message_id TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '',
		short_device_id TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_session ON notifications (session_id, recipient, invitee_id)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
