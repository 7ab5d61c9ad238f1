package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/batabung/batabung/internal/ledger/schema"
)

const accountColumns = `id, owner_id, name, alias, kind, active, source_tag,
	created_at, updated_at, sync_status`

// InsertAccount inserts an account or, if the id exists, updates it in place.
// Existing transactions under the account are kept.
func (db *DB) InsertAccount(ctx context.Context, acc *schema.Account) error {
	if err := acc.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	return upsertAccount(ctx, db.conn, acc)
}

func upsertAccount(ctx context.Context, q execer, acc *schema.Account) error {
	query := `
	INSERT INTO accounts (` + accountColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		alias = excluded.alias,
		kind = excluded.kind,
		active = excluded.active,
		source_tag = excluded.source_tag,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`

	_, err := q.ExecContext(ctx, query,
		acc.ID,
		acc.OwnerID,
		acc.Name,
		acc.Alias,
		string(acc.Kind),
		acc.Active,
		acc.SourceTag,
		acc.CreatedAt,
		acc.UpdatedAt,
		string(acc.SyncStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", acc.ID, err)
	}
	return nil
}

// UpdateAccount overwrites the mutable fields of an existing account.
// Returns ErrNotFound if the account does not exist.
func (db *DB) UpdateAccount(ctx context.Context, acc *schema.Account) error {
	if err := acc.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	query := `
	UPDATE accounts SET
		name = ?, alias = ?, kind = ?, active = ?, source_tag = ?,
		updated_at = ?, sync_status = ?
	WHERE id = ?
	`
	res, err := db.conn.ExecContext(ctx, query,
		acc.Name,
		acc.Alias,
		string(acc.Kind),
		acc.Active,
		acc.SourceTag,
		acc.UpdatedAt,
		string(acc.SyncStatus),
		acc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", acc.ID, err)
	}
	return affectedOne(res, "account", acc.ID)
}

// DeleteAccount removes an account and, through the foreign key, all of its
// transactions. Returns nil if the account doesn't exist.
func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	return nil
}

// GetAccount retrieves a single account by id.
// Returns ErrNotFound if the account is not found.
func (db *DB) GetAccount(ctx context.Context, id string) (*schema.Account, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return acc, nil
}

// ListAccounts returns all accounts of an owner ordered by name.
func (db *DB) ListAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error) {
	return db.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE owner_id = ?
		ORDER BY name ASC, created_at ASC`, ownerID)
}

// AccountsByStatus returns an owner's accounts with the given sync status,
// oldest edit first.
func (db *DB) AccountsByStatus(ctx context.Context, ownerID string, status schema.SyncStatus) ([]*schema.Account, error) {
	return db.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE owner_id = ? AND sync_status = ?
		ORDER BY updated_at ASC`, ownerID, string(status))
}

// AccountBySource finds the active account linked to an external source tag.
// Returns ErrNotFound if no active account carries the tag.
func (db *DB) AccountBySource(ctx context.Context, ownerID, sourceTag string) (*schema.Account, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE owner_id = ? AND source_tag = ? AND active = 1
		ORDER BY updated_at DESC
		LIMIT 1`, ownerID, sourceTag)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account with source %s: %w", sourceTag, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by source %s: %w", sourceTag, err)
	}
	return acc, nil
}

// UpdateAccountStatus sets the sync status of an account.
func (db *DB) UpdateAccountStatus(ctx context.Context, id string, status schema.SyncStatus) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE accounts SET sync_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update account status %s: %w", id, err)
	}
	return affectedOne(res, "account", id)
}

// MarkAccountSynced marks an account synced only if it still carries the
// pushed version. It reports false when the row was edited (or deleted)
// after the push started, leaving the newer edit pending.
func (db *DB) MarkAccountSynced(ctx context.Context, id string, updatedAt int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET sync_status = ? WHERE id = ? AND updated_at = ?`,
		string(schema.StatusSynced), id, updatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark account %s synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteAccountsByOwner removes every account of an owner together with
// their transactions.
func (db *DB) DeleteAccountsByOwner(ctx context.Context, ownerID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM accounts WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to delete accounts of %s: %w", ownerID, err)
	}
	return nil
}

func (db *DB) queryAccounts(ctx context.Context, query string, args ...any) ([]*schema.Account, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*schema.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*schema.Account, error) {
	var acc schema.Account
	var kind, status string
	err := s.Scan(
		&acc.ID,
		&acc.OwnerID,
		&acc.Name,
		&acc.Alias,
		&kind,
		&acc.Active,
		&acc.SourceTag,
		&acc.CreatedAt,
		&acc.UpdatedAt,
		&status,
	)
	if err != nil {
		return nil, err
	}
	acc.Kind = schema.AccountKind(kind)
	acc.SyncStatus = schema.SyncStatus(status)
	return &acc, nil
}
