package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		agent_id   TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS turns (
		id              TEXT    PRIMARY KEY,
		conversation_id TEXT    NOT NULL,
		seq             INTEGER NOT NULL,
		role            TEXT    NOT NULL,
		content         TEXT    NOT NULL DEFAULT '',
		is_summary      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT    NOT NULL,
		updated_at      TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, is_summary, created_at, seq)`,

	`CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS document_tags (
		doc_id TEXT NOT NULL,
		key    TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (doc_id, key, value)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_document_tags_kv ON document_tags(key, value)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		text,
		content=documents,
		content_rowid=rowid
	)`,

	`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
		INSERT INTO documents_fts(rowid, text) VALUES (new.rowid, new.text);
	END`,

	`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
	END`,

	`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		INSERT INTO documents_fts(rowid, text) VALUES (new.rowid, new.text);
	END`,

	`CREATE TABLE IF NOT EXISTS usage (
		id               TEXT    PRIMARY KEY,
		operation        TEXT    NOT NULL,
		input_tokens     INTEGER NOT NULL DEFAULT 0,
		output_tokens    INTEGER NOT NULL DEFAULT 0,
		total_tokens     INTEGER NOT NULL DEFAULT 0,
		response_time_ns INTEGER NOT NULL DEFAULT 0,
		conversation_id  TEXT    NOT NULL,
		message_id       TEXT    NOT NULL DEFAULT '',
		agent_id         TEXT    NOT NULL,
		created_at       TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_usage_conversation ON usage(conversation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_created ON usage(created_at)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	// Ensure schema_version table exists first.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
