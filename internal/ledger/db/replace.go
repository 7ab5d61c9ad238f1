package db

import (
	"context"
	"fmt"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// ReplaceOwnerData swaps all of an owner's rows for the given set in a
// single SQL transaction. Either the new set is fully visible or the old
// one is left untouched.
//
// Every record must belong to ownerID and every transaction must reference
// an account in the set.
func (db *DB) ReplaceOwnerData(ctx context.Context, ownerID string, accounts []*schema.Account, txs []*schema.Transaction) error {
	known := make(map[string]bool, len(accounts))
	for _, acc := range accounts {
		if acc.OwnerID != ownerID {
			return fmt.Errorf("account %s belongs to %s, not %s", acc.ID, acc.OwnerID, ownerID)
		}
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("invalid account %s: %w", acc.ID, err)
		}
		known[acc.ID] = true
	}
	for _, tx := range txs {
		if tx.OwnerID != ownerID {
			return fmt.Errorf("transaction %s belongs to %s, not %s", tx.ID, tx.OwnerID, ownerID)
		}
		if !known[tx.AccountID] {
			return fmt.Errorf("transaction %s references unknown account %s", tx.ID, tx.AccountID)
		}
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("invalid transaction %s: %w", tx.ID, err)
		}
	}

	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// Cascades to transactions, but delete explicitly in case a transaction
	// of this owner references another owner's account.
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM transactions WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM accounts WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to clear accounts: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM tombstones WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to clear tombstones: %w", err)
	}

	for _, acc := range accounts {
		if err := upsertAccount(ctx, sqlTx, acc); err != nil {
			return err
		}
	}
	for _, tx := range txs {
		if err := upsertTransaction(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
