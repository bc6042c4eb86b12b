// Package db provides the embedded SQLite database for the centavo ledger.
//
// The database runs fully on-device using the ncruces/go-sqlite3 driver in
// embedded mode with WAL enabled, so reads stay concurrent while the single
// logical writer (the record store) applies mutations.
//
// Schema:
//   - users, expenses, receipts, category_budgets: entity tables
//   - sync_queue: the outbox journal of unconfirmed mutations
//
// Indexes cover (owner_id, date) lookups on expenses/receipts, sync_status
// scans on the entity tables, and FIFO scans of the outbox.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection used by the store and the outbox.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates (if needed) and opens the ledger database at path.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL keeps readers unblocked while the store writes.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the on-disk location of the database file.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates all tables and indexes if they don't exist.
// Idempotent - safe to call on every startup.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id TEXT,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT 'USD',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		remote_id TEXT,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		merchant TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		expense_date TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		remote_id TEXT,
		image_ref TEXT NOT NULL,
		merchant TEXT NOT NULL DEFAULT '',
		total TEXT NOT NULL DEFAULT '0',
		receipt_date TEXT,
		ocr_confidence REAL NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		items TEXT,  -- JSON array of {name, price}
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS category_budgets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		monthly_budget TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (owner_id, name),
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_kind TEXT NOT NULL,
		operation TEXT NOT NULL,
		record_id INTEGER NOT NULL,
		payload TEXT,  -- JSON snapshot at enqueue time, NULL for deletes of unsynced rows
		enqueued_at TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TEXT,
		last_error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_owner_date ON expenses(owner_id, expense_date);
	CREATE INDEX IF NOT EXISTS idx_expenses_sync_status ON expenses(sync_status);
	CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses(owner_id, category);
	CREATE INDEX IF NOT EXISTS idx_receipts_owner_date ON receipts(owner_id, receipt_date);
	CREATE INDEX IF NOT EXISTS idx_receipts_sync_status ON receipts(sync_status);
	CREATE INDEX IF NOT EXISTS idx_users_sync_status ON users(sync_status);
	CREATE INDEX IF NOT EXISTS idx_sync_queue_order ON sync_queue(attempts, enqueued_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
