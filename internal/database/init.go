package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'collaborator',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		last_login_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'issue',
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'open',
		reported_at TIMESTAMPTZ NOT NULL,
		sla_hours INTEGER NOT NULL DEFAULT 24,
		due_at TIMESTAMPTZ NOT NULL,
		created_by_id UUID NOT NULL REFERENCES users(id),
		assigned_to_id UUID REFERENCES users(id),
		is_escalated BOOLEAN NOT NULL DEFAULT FALSE,
		escalated_to_id UUID REFERENCES users(id),
		escalated_at TIMESTAMPTZ,
		resolution_notes TEXT NOT NULL DEFAULT '',
		resolved_at TIMESTAMPTZ,
		closed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_due ON incidents (due_at) WHERE status NOT IN ('resolved', 'closed')`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		recipient_id UUID NOT NULL REFERENCES users(id),
		entity_type TEXT NOT NULL,
		entity_id UUID NOT NULL,
		data JSONB,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		is_email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id UUID PRIMARY KEY,
		content TEXT NOT NULL,
		user_id UUID NOT NULL REFERENCES users(id),
		entity_type TEXT NOT NULL,
		entity_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id UUID PRIMARY KEY,
		file_name TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		size BIGINT NOT NULL DEFAULT 0,
		uploaded_by_id UUID NOT NULL REFERENCES users(id),
		entity_type TEXT NOT NULL,
		entity_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Open connects to Postgres and verifies the connection
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Init creates the schema if it does not exist yet
func Init(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
