package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"chat-engine/internal/config"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied", zap.Int("statements", len(migrations)))

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT
        );`,
	`CREATE TABLE IF NOT EXISTS chats (
            id BIGSERIAL PRIMARY KEY,
            chat_type TEXT NOT NULL CHECK (chat_type IN ('single', 'group', 'broadcast')),
            name TEXT,
            created_by BIGINT NOT NULL,
            pair_key TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS chat_members (
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (chat_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS chat_members_user_idx ON chat_members (user_id);`,
	`CREATE TABLE IF NOT EXISTS broadcast_recipients (
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            recipient_id BIGINT NOT NULL,
            PRIMARY KEY (chat_id, recipient_id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id BIGSERIAL PRIMARY KEY,
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id BIGINT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            message_type TEXT NOT NULL DEFAULT 'user' CHECK (message_type IN ('user', 'system')),
            parent_message_id BIGINT REFERENCES chat_messages(id),
            attachments JSONB NOT NULL DEFAULT '[]',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ,
            search_vector tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(body, ''))) STORED
        );`,
	`CREATE INDEX IF NOT EXISTS chat_messages_chat_id_idx ON chat_messages (chat_id, id DESC);`,
	`CREATE INDEX IF NOT EXISTS chat_messages_parent_idx ON chat_messages (parent_message_id) WHERE parent_message_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS chat_messages_search_idx ON chat_messages USING GIN (search_vector);`,
	`CREATE TABLE IF NOT EXISTS chat_message_replies (
            message_id BIGINT PRIMARY KEY REFERENCES chat_messages(id) ON DELETE CASCADE,
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            reply_message_id BIGINT NOT NULL REFERENCES chat_messages(id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_system_events (
            message_id BIGINT PRIMARY KEY REFERENCES chat_messages(id) ON DELETE CASCADE,
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            event TEXT NOT NULL,
            metadata JSONB NOT NULL DEFAULT '{}'
        );`,
	`CREATE TABLE IF NOT EXISTS chat_message_deletes (
            message_id BIGINT NOT NULL REFERENCES chat_messages(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            delete_action TEXT NOT NULL CHECK (delete_action IN ('self', 'everyone')),
            deleted_by BIGINT NOT NULL,
            deleted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_clears (
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            cleared_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (chat_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_message_receipts (
            message_id BIGINT NOT NULL REFERENCES chat_messages(id) ON DELETE CASCADE,
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS chat_message_receipts_chat_user_idx ON chat_message_receipts (chat_id, user_id);`,
	`CREATE TABLE IF NOT EXISTS chat_read_summary (
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            last_read_message_id BIGINT,
            unread_count INT NOT NULL DEFAULT 0,
            last_read_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (chat_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_message_dispatches (
            message_id BIGINT PRIMARY KEY REFERENCES chat_messages(id) ON DELETE CASCADE,
            dispatched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS chat_message_schedules (
            id BIGSERIAL PRIMARY KEY,
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id BIGINT NOT NULL,
            body TEXT NOT NULL,
            scheduled_at TIMESTAMPTZ NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
            retry_count INT NOT NULL DEFAULT 0,
            last_attempt_at TIMESTAMPTZ,
            completed_at TIMESTAMPTZ,
            error_message TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS chat_message_schedules_due_idx ON chat_message_schedules (status, scheduled_at);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
