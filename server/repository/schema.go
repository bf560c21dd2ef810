package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		message_id UUID PRIMARY KEY,
		sender_id UUID NOT NULL,
		receiver_id UUID NOT NULL,
		body TEXT NOT NULL,
		file_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_sender_created_idx ON messages(sender_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS messages_receiver_created_idx ON messages(receiver_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS files (
		file_id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		object_key TEXT NOT NULL,
		thumbnail_key TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		size_bytes BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables this service owns if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
