// Package backend is the hosted side of the ledger: an HTTP API with
// per-row access control over Postgres.
//
// Every request is authenticated with a bearer JWT whose subject is the
// owner. Reads only ever see the owner's rows, writes must carry the
// owner's user_id, and deletes are confined to the owner's rows.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/batabung/batabung/internal/ledger/remote"
)

var (
	// ErrForbidden is returned when a write targets another owner's row.
	ErrForbidden = errors.New("row belongs to another owner")
	// ErrReferenced is returned when deleting an account that still has
	// transactions.
	ErrReferenced = errors.New("row is still referenced")
	// ErrUnknownColumn is returned for filters on columns that cannot be
	// filtered.
	ErrUnknownColumn = errors.New("unknown filter column")
	// ErrInvalidRow is returned when a row violates a table constraint.
	ErrInvalidRow = errors.New("invalid row")
)

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// OpenPostgres connects and configures the pool.
func OpenPostgres(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    name        TEXT NOT NULL,
    alias       TEXT,
    kind        TEXT NOT NULL CHECK (kind IN ('bank', 'e-wallet')),
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    source_tag  TEXT,
    created_at  BIGINT NOT NULL,
    updated_at  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

CREATE TABLE IF NOT EXISTS transactions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    account_id  TEXT NOT NULL REFERENCES accounts(id),
    occurred_at BIGINT NOT NULL,
    direction   TEXT NOT NULL CHECK (direction IN ('in', 'out')),
    amount      BIGINT NOT NULL CHECK (amount > 0),
    category    TEXT NOT NULL DEFAULT '',
    note        TEXT,
    created_at  BIGINT NOT NULL,
    updated_at  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
`

// Store is the Postgres-backed table store. Every method is scoped to an
// owner.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var filterable = map[string]map[string]bool{
	remote.TableAccounts:     {"id": true, "user_id": true},
	remote.TableTransactions: {"id": true, "user_id": true, "account_id": true},
}

// Filter is an equality filter on one column.
type Filter struct {
	Column string
	Value  string
}

func (f *Filter) clause(table string, arg int) (string, error) {
	if f == nil {
		return "", nil
	}
	if !filterable[table][f.Column] {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, f.Column)
	}
	// Column names come from the allow-list above.
	return fmt.Sprintf(" AND %s = $%d", f.Column, arg), nil
}

// SelectAccounts returns the owner's accounts matching f (nil for all).
func (s *Store) SelectAccounts(ctx context.Context, owner string, f *Filter) ([]remote.AccountRow, error) {
	where, err := f.clause(remote.TableAccounts, 2)
	if err != nil {
		return nil, err
	}
	args := []any{owner}
	if f != nil {
		args = append(args, f.Value)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, alias, kind, is_active, source_tag, created_at, updated_at
		FROM accounts WHERE user_id = $1`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select accounts: %w", err)
	}
	defer rows.Close()

	out := []remote.AccountRow{}
	for rows.Next() {
		var r remote.AccountRow
		var alias, tag sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &alias, &r.Kind, &r.IsActive, &tag, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		r.Alias = nullable(alias)
		r.SourceTag = nullable(tag)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SelectTransactions returns the owner's transactions matching f.
func (s *Store) SelectTransactions(ctx context.Context, owner string, f *Filter) ([]remote.TransactionRow, error) {
	where, err := f.clause(remote.TableTransactions, 2)
	if err != nil {
		return nil, err
	}
	args := []any{owner}
	if f != nil {
		args = append(args, f.Value)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, account_id, occurred_at, direction, amount, category, note, created_at, updated_at
		FROM transactions WHERE user_id = $1`+where+` ORDER BY occurred_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}
	defer rows.Close()

	out := []remote.TransactionRow{}
	for rows.Next() {
		var r remote.TransactionRow
		var note sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.AccountID, &r.OccurredAt, &r.Direction, &r.Amount,
			&r.Category, &note, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		r.Note = nullable(note)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertAccount inserts or updates an account. The row must belong to
// owner, and an existing row with the same id must too.
func (s *Store) UpsertAccount(ctx context.Context, owner string, r remote.AccountRow) error {
	if r.UserID != owner {
		return ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, alias, kind, is_active, source_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			alias = EXCLUDED.alias,
			kind = EXCLUDED.kind,
			is_active = EXCLUDED.is_active,
			source_tag = EXCLUDED.source_tag,
			updated_at = EXCLUDED.updated_at
		WHERE accounts.user_id = EXCLUDED.user_id`,
		r.ID, r.UserID, r.Name, r.Alias, r.Kind, r.IsActive, r.SourceTag, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", r.ID, translate(err))
	}
	return requireRow(res)
}

// UpsertTransaction inserts or updates a transaction. Its account must
// exist and belong to owner.
func (s *Store) UpsertTransaction(ctx context.Context, owner string, r remote.TransactionRow) error {
	if r.UserID != owner {
		return ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, account_id, occurred_at, direction, amount, category, note, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE EXISTS (SELECT 1 FROM accounts WHERE id = $3 AND user_id = $2)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			occurred_at = EXCLUDED.occurred_at,
			direction = EXCLUDED.direction,
			amount = EXCLUDED.amount,
			category = EXCLUDED.category,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
		WHERE transactions.user_id = EXCLUDED.user_id`,
		r.ID, r.UserID, r.AccountID, r.OccurredAt, r.Direction, r.Amount, r.Category, r.Note, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", r.ID, translate(err))
	}
	return requireRow(res)
}

// Delete removes the owner's rows of table matching f and returns how many
// were deleted.
func (s *Store) Delete(ctx context.Context, owner, table string, f Filter) (int64, error) {
	if _, ok := filterable[table]; !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	where, err := f.clause(table, 2)
	if err != nil {
		return 0, err
	}
	// table is one of the allow-listed keys.
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = $1`+where, owner, f.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, translate(err))
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrForbidden
	}
	return nil
}

// translate maps Postgres constraint errors onto package errors.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "foreign_key_violation":
			return fmt.Errorf("%w: %s", ErrReferenced, pqErr.Message)
		case "check_violation", "not_null_violation":
			return fmt.Errorf("%w: %s", ErrInvalidRow, pqErr.Message)
		}
	}
	return err
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
