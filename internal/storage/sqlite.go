package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultDeadLetterLimit is the number of consecutive failures after which a
// message is permanently dead-lettered.
const DefaultDeadLetterLimit = 3

// SQLiteStorage implements the service.Storage interface using SQLite.
type SQLiteStorage struct {
	db              *sql.DB
	dbPath          string
	deadLetterLimit int
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Validate input
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes all writes, which is what keeps
	// read-merge-write upserts atomic per reference.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:              db,
		dbPath:          dbPath,
		deadLetterLimit: DefaultDeadLetterLimit,
	}, nil
}

// SetDeadLetterLimit overrides the failure bound after which a message is
// permanently dead-lettered.
func (s *SQLiteStorage) SetDeadLetterLimit(limit int) {
	if limit > 0 {
		s.deadLetterLimit = limit
	}
}

// queryable lets the store helpers run against either the pool or an open
// transaction.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
