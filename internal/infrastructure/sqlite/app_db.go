package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// AppDB is the application's database. A database restore renames a new file
// over the live path, so the pool can be reopened to follow it; queries hold
// the read lock and never see a closed pool.
type AppDB struct {
	path string

	mu sync.RWMutex
	db *sqlx.DB
}

// OpenApp opens the application's database for the read paths sitecalm
// serves (campaigns, videos) and for analytics inserts. No schema is created.
func OpenApp(dbPath string) (*AppDB, error) {
	db, err := connectApp(dbPath)
	if err != nil {
		return nil, err
	}
	return &AppDB{path: dbPath, db: db}, nil
}

func connectApp(dbPath string) (*sqlx.DB, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to application database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Reopen swaps the pool for one on the file now at the database path. The old
// pool is closed once in-flight queries have finished.
func (a *AppDB) Reopen() error {
	db, err := connectApp(a.path)
	if err != nil {
		return err
	}

	a.mu.Lock()
	old := a.db
	a.db = db
	a.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (a *AppDB) Path() string {
	return a.path
}

func (a *AppDB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db.GetContext(ctx, dest, query, args...)
}

func (a *AppDB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db.SelectContext(ctx, dest, query, args...)
}

func (a *AppDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db.ExecContext(ctx, query, args...)
}

func (a *AppDB) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db.NamedExecContext(ctx, query, arg)
}

func (a *AppDB) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
