package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// schema is sitecalm's own state. The application database is never
// migrated from here.
const schema = `
CREATE TABLE IF NOT EXISTS process (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command_id TEXT NOT NULL,
	command TEXT NOT NULL,
	pid INTEGER,
	status TEXT NOT NULL,
	output TEXT,
	error TEXT,
	return_code INTEGER,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	type TEXT NOT NULL,
	args TEXT NOT NULL -- JSON object
);

CREATE TABLE IF NOT EXISTS restore_job (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	summary TEXT, -- JSON RestoreSummary
	error TEXT,
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS rr_cursor (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	expires_at INTEGER NOT NULL -- unix nanoseconds
);

CREATE INDEX IF NOT EXISTS idx_processes_status ON process(status);
CREATE INDEX IF NOT EXISTS idx_processes_type ON process(type);
CREATE INDEX IF NOT EXISTS idx_processes_command_id ON process(command_id);
CREATE INDEX IF NOT EXISTS idx_restore_jobs_status ON restore_job(status);
`

type DB struct {
	*sqlx.DB
}

func New(dbPath string) (*DB, error) {
	// Pragmas go in the DSN so every pooled connection gets them, not just the first
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if dbPath == ":memory:" {
		dsn = dbPath
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every pooled connection to :memory: would otherwise see its own empty database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

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

// NullInt helper for optional int fields
func NullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
