package db

import (
	"context"
	"fmt"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// DeleteWithTombstone deletes the record named by ts and stores ts in the
// same SQL transaction, so a delete is never visible without its tombstone.
// Deleting an account also deletes its transactions.
func (db *DB) DeleteWithTombstone(ctx context.Context, ts *schema.Tombstone) error {
	var query string
	switch ts.Kind {
	case schema.EntityAccount:
		query = `DELETE FROM accounts WHERE id = ?`
	case schema.EntityTransaction:
		query = `DELETE FROM transactions WHERE id = ?`
	default:
		return fmt.Errorf("unknown entity kind %q", ts.Kind)
	}

	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, query, ts.ID); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", ts.Kind, ts.ID, err)
	}
	if err := addTombstone(ctx, sqlTx, ts); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddTombstone records a local delete whose remote delete is still owed.
// Adding the same record twice keeps one entry.
func (db *DB) AddTombstone(ctx context.Context, ts *schema.Tombstone) error {
	return addTombstone(ctx, db.conn, ts)
}

func addTombstone(ctx context.Context, q execer, ts *schema.Tombstone) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tombstones (kind, id, owner_id, account_id, deleted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET deleted_at = excluded.deleted_at`,
		string(ts.Kind), ts.ID, ts.OwnerID, ts.AccountID, ts.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to add tombstone %s/%s: %w", ts.Kind, ts.ID, err)
	}
	return nil
}

// ListTombstones returns an owner's tombstones, accounts last so that
// transaction deletes are retried before the account they belong to.
func (db *DB) ListTombstones(ctx context.Context, ownerID string) ([]*schema.Tombstone, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT kind, id, owner_id, account_id, deleted_at
		FROM tombstones
		WHERE owner_id = ?
		ORDER BY CASE kind WHEN 'account' THEN 1 ELSE 0 END, deleted_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstones: %w", err)
	}
	defer rows.Close()

	tombstones := []*schema.Tombstone{}
	for rows.Next() {
		var ts schema.Tombstone
		var kind string
		if err := rows.Scan(&kind, &ts.ID, &ts.OwnerID, &ts.AccountID, &ts.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		ts.Kind = schema.EntityKind(kind)
		tombstones = append(tombstones, &ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tombstones: %w", err)
	}
	return tombstones, nil
}

// RemoveTombstone forgets a tombstone once the remote delete succeeded.
func (db *DB) RemoveTombstone(ctx context.Context, kind schema.EntityKind, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tombstones WHERE kind = ? AND id = ?`, string(kind), id); err != nil {
		return fmt.Errorf("failed to remove tombstone %s/%s: %w", kind, id, err)
	}
	return nil
}
