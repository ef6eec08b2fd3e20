package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS user (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS database (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	db_name TEXT NOT NULL,
	username TEXT NOT NULL,
	password TEXT NOT NULL, -- encrypted at rest
	schema TEXT,
	ssl_mode TEXT NOT NULL DEFAULT 'prefer',
	environment TEXT NOT NULL CHECK (environment IN ('prod', 'dev')),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS schedule (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	database_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	cron_expr TEXT NOT NULL,
	local_only INTEGER NOT NULL DEFAULT 0,
	enabled INTEGER NOT NULL DEFAULT 1,
	last_run_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (database_id) REFERENCES database(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS backup (
	id TEXT PRIMARY KEY,
	database_id INTEGER NOT NULL,
	database_name TEXT NOT NULL,
	schedule_id INTEGER,
	file_name TEXT NOT NULL,
	size INTEGER,
	encrypted INTEGER NOT NULL DEFAULT 0,
	remote_key TEXT,
	status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
	error TEXT,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	FOREIGN KEY (schedule_id) REFERENCES schedule(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS restore (
	id TEXT PRIMARY KEY,
	backup_id TEXT,
	remote_key TEXT,
	source_environment TEXT NOT NULL,
	target_environment TEXT NOT NULL,
	target_database_id INTEGER,
	target_summary TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
	error TEXT,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	duration_ms INTEGER,
	FOREIGN KEY (backup_id) REFERENCES backup(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_backups_database_id ON backup(database_id);
CREATE INDEX IF NOT EXISTS idx_backups_status ON backup(status);
CREATE INDEX IF NOT EXISTS idx_backups_start_time ON backup(start_time);
CREATE INDEX IF NOT EXISTS idx_restores_status ON restore(status);
CREATE INDEX IF NOT EXISTS idx_schedules_database_id ON schedule(database_id);
`

type DB struct {
	*sqlx.DB
}

func New(dbPath string) (*DB, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable WAL mode for better concurrency (allows concurrent reads/writes)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so API handlers and backup workers can share the file
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create tables
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// NullString helper for optional string fields
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullInt64 helper for optional int64 fields
func NullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
