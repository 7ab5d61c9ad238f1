package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/batabung/batabung/internal/ledger/schema"
)

const transactionColumns = `id, owner_id, account_id, occurred_at, direction, amount,
	category, note, created_at, updated_at, sync_status`

// InsertTransaction inserts a transaction or updates it in place if the id
// exists. A non-positive amount fails with schema.ErrInvalidAmount before
// anything is written.
func (db *DB) InsertTransaction(ctx context.Context, tx *schema.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	return upsertTransaction(ctx, db.conn, tx)
}

func upsertTransaction(ctx context.Context, q execer, tx *schema.Transaction) error {
	query := `
	INSERT INTO transactions (` + transactionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		account_id = excluded.account_id,
		occurred_at = excluded.occurred_at,
		direction = excluded.direction,
		amount = excluded.amount,
		category = excluded.category,
		note = excluded.note,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`

	_, err := q.ExecContext(ctx, query,
		tx.ID,
		tx.OwnerID,
		tx.AccountID,
		tx.OccurredAt,
		string(tx.Direction),
		tx.Amount,
		tx.Category,
		tx.Note,
		tx.CreatedAt,
		tx.UpdatedAt,
		string(tx.SyncStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// UpdateTransaction overwrites the mutable fields of an existing transaction.
// Returns ErrNotFound if the transaction does not exist.
func (db *DB) UpdateTransaction(ctx context.Context, tx *schema.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	query := `
	UPDATE transactions SET
		account_id = ?, occurred_at = ?, direction = ?, amount = ?,
		category = ?, note = ?, updated_at = ?, sync_status = ?
	WHERE id = ?
	`
	res, err := db.conn.ExecContext(ctx, query,
		tx.AccountID,
		tx.OccurredAt,
		string(tx.Direction),
		tx.Amount,
		tx.Category,
		tx.Note,
		tx.UpdatedAt,
		string(tx.SyncStatus),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}
	return affectedOne(res, "transaction", tx.ID)
}

// DeleteTransaction removes a transaction. Returns nil if it doesn't exist.
func (db *DB) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return nil
}

// GetTransaction retrieves a single transaction by id.
// Returns ErrNotFound if the transaction is not found.
func (db *DB) GetTransaction(ctx context.Context, id string) (*schema.Transaction, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return tx, nil
}

// ListTransactions returns all transactions of an owner, newest first.
func (db *DB) ListTransactions(ctx context.Context, ownerID string) ([]*schema.Transaction, error) {
	return db.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE owner_id = ?
		ORDER BY occurred_at DESC, created_at DESC`, ownerID)
}

// ListTransactionsByAccount returns the transactions of one account, newest first.
func (db *DB) ListTransactionsByAccount(ctx context.Context, accountID string) ([]*schema.Transaction, error) {
	return db.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ?
		ORDER BY occurred_at DESC, created_at DESC`, accountID)
}

// TransactionsByStatus returns an owner's transactions with the given sync
// status, oldest edit first.
func (db *DB) TransactionsByStatus(ctx context.Context, ownerID string, status schema.SyncStatus) ([]*schema.Transaction, error) {
	return db.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE owner_id = ? AND sync_status = ?
		ORDER BY updated_at ASC`, ownerID, string(status))
}

// UpdateTransactionStatus sets the sync status of a transaction.
func (db *DB) UpdateTransactionStatus(ctx context.Context, id string, status schema.SyncStatus) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction status %s: %w", id, err)
	}
	return affectedOne(res, "transaction", id)
}

// MarkTransactionSynced marks a transaction synced only if it still carries
// the pushed version. See MarkAccountSynced.
func (db *DB) MarkTransactionSynced(ctx context.Context, id string, updatedAt int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ? AND updated_at = ?`,
		string(schema.StatusSynced), id, updatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction %s synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteTransactionsByAccount removes every transaction of an account.
func (db *DB) DeleteTransactionsByAccount(ctx context.Context, accountID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete transactions of account %s: %w", accountID, err)
	}
	return nil
}

// DeleteTransactionsByOwner removes every transaction of an owner.
func (db *DB) DeleteTransactionsByOwner(ctx context.Context, ownerID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM transactions WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to delete transactions of %s: %w", ownerID, err)
	}
	return nil
}

func (db *DB) queryTransactions(ctx context.Context, query string, args ...any) ([]*schema.Transaction, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []*schema.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(s scanner) (*schema.Transaction, error) {
	var tx schema.Transaction
	var direction, status string
	err := s.Scan(
		&tx.ID,
		&tx.OwnerID,
		&tx.AccountID,
		&tx.OccurredAt,
		&direction,
		&tx.Amount,
		&tx.Category,
		&tx.Note,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&status,
	)
	if err != nil {
		return nil, err
	}
	tx.Direction = schema.Direction(direction)
	tx.SyncStatus = schema.SyncStatus(status)
	return &tx, nil
}
