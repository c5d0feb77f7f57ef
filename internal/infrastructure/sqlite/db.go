package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a database that lives only as long as the *sql.DB.
const MemoryPath = ":memory:"

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := "file::memory:?_busy_timeout=5000&_foreign_keys=on"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// One writer keeps transactions serialized, and an in-memory database
	// exists only on its single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS slots (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id                TEXT PRIMARY KEY,
		email             TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash     TEXT NOT NULL,
		first_name        TEXT NOT NULL,
		last_name         TEXT NOT NULL,
		is_organizer      INTEGER NOT NULL DEFAULT 1,
		is_email_verified INTEGER NOT NULL DEFAULT 0,
		account_status    TEXT NOT NULL,
		profile           TEXT,
		last_login        TIMESTAMP,
		created_at        TIMESTAMP NOT NULL,
		updated_at        TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_hash TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMP NOT NULL,
		revoked_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS verification_tokens (
		token_hash TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMP NOT NULL,
		used_at    TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS login_failures (
		ip         TEXT NOT NULL,
		email      TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS login_failures_ip ON login_failures (ip, created_at)`,
	`CREATE TABLE IF NOT EXISTS oauth_states (
		state            TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider         TEXT NOT NULL,
		integration_type TEXT NOT NULL,
		redirect_uri     TEXT NOT NULL,
		expires_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS integrations (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider         TEXT NOT NULL,
		integration_type TEXT NOT NULL,
		access_token     TEXT NOT NULL,
		refresh_token    TEXT NOT NULL,
		token_expiry     TIMESTAMP,
		created_at       TIMESTAMP NOT NULL,
		UNIQUE (user_id, provider, integration_type)
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		email   TEXT NOT NULL COLLATE NOCASE,
		name    TEXT NOT NULL,
		phone   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, email)
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
