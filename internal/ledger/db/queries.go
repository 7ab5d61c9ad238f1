package db

import (
	"context"
	"fmt"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// Balance returns sum(in) - sum(out) for one account. Balances are never
// stored; they are derived from the transaction rows on every call.
func (db *DB) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'in' THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE account_id = ?`, accountID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to compute balance of %s: %w", accountID, err)
	}
	return balance, nil
}

// OwnerBalance returns the combined balance of an owner's active accounts.
func (db *DB) OwnerBalance(ctx context.Context, ownerID string) (int64, error) {
	var balance int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN t.direction = 'in' THEN t.amount ELSE -t.amount END), 0)
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.owner_id = ? AND a.active = 1`, ownerID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to compute balance of owner %s: %w", ownerID, err)
	}
	return balance, nil
}

// TotalByDirection sums one direction of an account's transactions whose
// occurred_at falls in [from, to). A zero bound is open.
func (db *DB) TotalByDirection(ctx context.Context, accountID string, dir schema.Direction, from, to int64) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = ? AND direction = ?`
	args := []any{accountID, string(dir)}
	if from > 0 {
		query += ` AND occurred_at >= ?`
		args = append(args, from)
	}
	if to > 0 {
		query += ` AND occurred_at < ?`
		args = append(args, to)
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to total %s transactions of %s: %w", dir, accountID, err)
	}
	return total, nil
}

// CategoryTotal is the sum of one category.
type CategoryTotal struct {
	Category string
	Total    int64
}

// CategoryTotals groups an account's transactions in one direction by
// category, largest first.
func (db *DB) CategoryTotals(ctx context.Context, accountID string, dir schema.Direction) ([]CategoryTotal, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT category, SUM(amount) AS total
		FROM transactions
		WHERE account_id = ? AND direction = ?
		GROUP BY category
		ORDER BY total DESC, category ASC`, accountID, string(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to query category totals: %w", err)
	}
	defer rows.Close()

	totals := []CategoryTotal{}
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category totals: %w", err)
	}
	return totals, nil
}

// StatusCounts summarizes how much of an owner's ledger is waiting to sync.
type StatusCounts struct {
	Accounts     map[schema.SyncStatus]int `json:"accounts"`
	Transactions map[schema.SyncStatus]int `json:"transactions"`
	Tombstones   int                       `json:"tombstones"`
}

// Pending returns the number of records still waiting to be pushed.
func (c *StatusCounts) Pending() int {
	return c.Accounts[schema.StatusPending] + c.Transactions[schema.StatusPending] + c.Tombstones
}

// Empty reports whether the owner has no rows and no owed deletes.
func (c *StatusCounts) Empty() bool {
	for _, n := range c.Accounts {
		if n > 0 {
			return false
		}
	}
	for _, n := range c.Transactions {
		if n > 0 {
			return false
		}
	}
	return c.Tombstones == 0
}

// Counts returns per-status record counts for an owner.
func (db *DB) Counts(ctx context.Context, ownerID string) (*StatusCounts, error) {
	counts := &StatusCounts{
		Accounts:     map[schema.SyncStatus]int{},
		Transactions: map[schema.SyncStatus]int{},
	}

	for table, dest := range map[string]map[schema.SyncStatus]int{
		"accounts":     counts.Accounts,
		"transactions": counts.Transactions,
	} {
		rows, err := db.conn.QueryContext(ctx,
			`SELECT sync_status, COUNT(*) FROM `+table+` WHERE owner_id = ? GROUP BY sync_status`, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s count: %w", table, err)
			}
			dest[schema.SyncStatus(status)] = n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating %s counts: %w", table, err)
		}
	}

	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tombstones WHERE owner_id = ?`, ownerID).Scan(&counts.Tombstones)
	if err != nil {
		return nil, fmt.Errorf("failed to count tombstones: %w", err)
	}
	return counts, nil
}
