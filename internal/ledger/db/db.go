// Package db provides the on-device ledger store backed by embedded SQLite.
//
// The store is shared by the sync engine and the presentation layer. Every
// method is self-contained: it either commits fully or leaves the tables as
// they were, so other callers never observe a half-applied operation.
//
// Architecture:
//   - Database file: ~/.local/share/batabung/ledger.db (configurable)
//   - WAL mode: concurrent readers during writes
//   - Schema: accounts, transactions, tombstones
//   - transactions.account_id references accounts(id) ON DELETE CASCADE
//
// Connection pragmas are passed in the DSN so every pooled connection gets
// them. Upserts use INSERT ... ON CONFLICT DO UPDATE. INSERT OR REPLACE would
// delete the old account row first and cascade to its transactions.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a record with the requested id does not exist.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite connection pool with ledger-specific queries.
type DB struct {
	conn *sql.DB
	path string
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. The caller MUST call Close()
// when done. Open does not create tables; call InitSchema.
//
// Example:
//
//	store, err := db.Open(filepath.Join(dataDir, "ledger.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
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

	return &DB{conn: conn, path: path}, nil
}

// dsn builds the connection string. Write transactions take the lock
// immediately so concurrent writers wait on busy_timeout instead of failing
// on lock upgrade.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(wal)" +
		"&_txlock=immediate"
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection pool.
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

// InitSchema creates the tables and indexes if they don't exist.
// Safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		alias TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		source_tag TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		direction TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		category TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	-- Remote deletes that have not been confirmed yet
	CREATE TABLE IF NOT EXISTS tombstones (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		deleted_at INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts(owner_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_accounts_source ON accounts(owner_id, source_tag);

	CREATE INDEX IF NOT EXISTS idx_transactions_owner ON transactions(owner_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(owner_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, occurred_at);

	CREATE INDEX IF NOT EXISTS idx_tombstones_owner ON tombstones(owner_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// affectedOne converts a zero-row update into ErrNotFound.
func affectedOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
