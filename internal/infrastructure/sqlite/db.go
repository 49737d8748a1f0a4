package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as UTC unix nanoseconds so range queries compare
// numerically.
const schema = `
CREATE TABLE IF NOT EXISTS schedule (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	frequency TEXT NOT NULL,
	time TEXT NOT NULL DEFAULT '',
	day_of_week INTEGER NOT NULL DEFAULT 0,
	timezone TEXT NOT NULL,
	cron_expression TEXT NOT NULL,
	backup_type TEXT NOT NULL,
	collections TEXT NOT NULL, -- JSON array
	compression TEXT NOT NULL DEFAULT '',
	storage_providers TEXT NOT NULL, -- JSON array
	retention_policy TEXT NOT NULL, -- JSON object
	notifications TEXT NOT NULL, -- JSON object
	last_run_at INTEGER,
	next_run_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS backup (
	id TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	compression TEXT NOT NULL DEFAULT '',
	collections TEXT NOT NULL, -- JSON array
	document_counts TEXT NOT NULL, -- JSON object
	size INTEGER NOT NULL DEFAULT 0,
	duration INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	archive_path TEXT NOT NULL DEFAULT '',
	remote_objects TEXT NOT NULL, -- JSON object
	since INTEGER,
	progress INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS connection (
	provider TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	account_identifier TEXT NOT NULL DEFAULT '',
	folder_reference TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_type TEXT NOT NULL DEFAULT '',
	expiry INTEGER,
	last_sync_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_schedule_due ON schedule(enabled, next_run_at);
CREATE INDEX IF NOT EXISTS idx_backup_schedule_id ON backup(schedule_id);
CREATE INDEX IF NOT EXISTS idx_backup_status ON backup(status);
CREATE INDEX IF NOT EXISTS idx_backup_created_at ON backup(created_at);
`

type DB struct {
	*sqlx.DB
}

func New(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every pooled connection to :memory: would open its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func unixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// NullTime converts an optional time to a nullable unix-nanosecond column.
func NullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: unixNano(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnixNano(n.Int64)
	return &t
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
