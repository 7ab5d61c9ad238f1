package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// setupTestDB opens a fresh store with the schema applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func account(id, owner string, updatedAt int64) *schema.Account {
	return &schema.Account{
		ID:         id,
		OwnerID:    owner,
		Name:       "Account " + id,
		Kind:       schema.KindBank,
		Active:     true,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
		SyncStatus: schema.StatusPending,
	}
}

func transaction(id, owner, accountID string, dir schema.Direction, amount int64) *schema.Transaction {
	return &schema.Transaction{
		ID:         id,
		OwnerID:    owner,
		AccountID:  accountID,
		OccurredAt: 1000,
		Direction:  dir,
		Amount:     amount,
		CreatedAt:  1000,
		UpdatedAt:  1000,
		SyncStatus: schema.StatusPending,
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	store := setupTestDB(t)
	require.NoError(t, store.InitSchema())

	for _, table := range []string{"accounts", "transactions", "tombstones"} {
		var count int
		err := store.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// Pin several pooled connections at once and check each one.
	conns := make([]interface{ Close() error }, 0, 3)
	for i := 0; i < 3; i++ {
		conn, err := store.conn.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)

		var fk int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 1, fk)
	}
	for _, c := range conns {
		_ = c.Close()
	}
}

func TestInsertAccount_UpsertKeepsTransactions(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	acc := account("a1", "u1", 100)
	require.NoError(t, store.InsertAccount(ctx, acc))
	require.NoError(t, store.InsertTransaction(ctx, transaction("t1", "u1", "a1", schema.DirectionIn, 500)))

	acc.Name = "Renamed"
	acc.UpdatedAt = 200
	require.NoError(t, store.InsertAccount(ctx, acc))

	got, err := store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, int64(200), got.UpdatedAt)

	txs, err := store.ListTransactionsByAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, txs, 1, "re-inserting an account must not cascade")
}

func TestGetAccount_NotFound(t *testing.T) {
	store := setupTestDB(t)
	_, err := store.GetAccount(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateAccount(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	err := store.UpdateAccount(ctx, account("missing", "u1", 100))
	assert.ErrorIs(t, err, ErrNotFound)

	acc := account("a1", "u1", 100)
	require.NoError(t, store.InsertAccount(ctx, acc))
	acc.Alias = "Payroll"
	acc.Active = false
	acc.UpdatedAt = 150
	require.NoError(t, store.UpdateAccount(ctx, acc))

	got, err := store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Payroll", got.Alias)
	assert.False(t, got.Active)
}

func TestDeleteAccount_Cascades(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAccount(ctx, account("a1", "u1", 100)))
	require.NoError(t, store.InsertAccount(ctx, account("a2", "u1", 100)))
	require.NoError(t, store.InsertTransaction(ctx, transaction("t1", "u1", "a1", schema.DirectionIn, 10)))
	require.NoError(t, store.InsertTransaction(ctx, transaction("t2", "u1", "a1", schema.DirectionOut, 5)))
	require.NoError(t, store.InsertTransaction(ctx, transaction("t3", "u1", "a2", schema.DirectionIn, 7)))

	require.NoError(t, store.DeleteAccount(ctx, "a1"))
	require.NoError(t, store.DeleteAccount(ctx, "a1"), "delete is idempotent")

	_, err := store.GetTransaction(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetTransaction(ctx, "t2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetTransaction(ctx, "t3")
	assert.NoError(t, err)
}

func TestInsertTransaction_RejectsInvalidAmount(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.InsertAccount(ctx, account("a1", "u1", 100)))

	for _, amount := range []int64{0, -1} {
		err := store.InsertTransaction(ctx, transaction("t1", "u1", "a1", schema.DirectionIn, amount))
		assert.ErrorIs(t, err, schema.ErrInvalidAmount)
	}

	txs, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestInsertTransaction_RequiresAccount(t *testing.T) {
	store := setupTestDB(t)
	err := store.InsertTransaction(context.Background(), transaction("t1", "u1", "nope", schema.DirectionIn, 10))
	assert.Error(t, err, "foreign key should reject orphan transaction")
}

func TestStatusQueries(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	synced := account("a1", "u1", 100)
	synced.SyncStatus = schema.StatusSynced
	require.NoError(t, store.InsertAccount(ctx, synced))
	require.NoError(t, store.InsertAccount(ctx, account("a2", "u1", 100)))
	require.NoError(t, store.InsertAccount(ctx, account("b1", "u2", 100)))

	pending, err := store.AccountsByStatus(ctx, "u1", schema.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a2", pending[0].ID)

	require.NoError(t, store.UpdateAccountStatus(ctx, "a2", schema.StatusSynced))
	pending, err = store.AccountsByStatus(ctx, "u1", schema.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, store.UpdateAccountStatus(ctx, "missing", schema.StatusSynced), ErrNotFound)
}

func TestMarkSynced_OnlyMatchingVersion(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAccount(ctx, account("a1", "u1", 100)))

	// Edited locally after the push read version 100.
	edited := account("a1", "u1", 100)
	edited.UpdatedAt = 300
	require.NoError(t, store.UpdateAccount(ctx, edited))

	ok, err := store.MarkAccountSynced(ctx, "a1", 100)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusPending, got.SyncStatus)

	ok, err = store.MarkAccountSynced(ctx, "a1", 300)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.InsertTransaction(ctx, transaction("t1", "u1", "a1", schema.DirectionIn, 10)))
	ok, err = store.MarkTransactionSynced(ctx, "t1", 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplaceOwnerData(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAccount(ctx, account("old", "u1", 100)))
	require.NoError(t, store.InsertTransaction(ctx, transaction("t-old", "u1", "old", schema.DirectionIn, 10)))
	require.NoError(t, store.InsertAccount(ctx, account("other", "u2", 100)))
	require.NoError(t, store.AddTombstone(ctx, &schema.Tombstone{Kind: schema.EntityAccount, ID: "gone", OwnerID: "u1", DeletedAt: 5}))

	a1 := account("a1", "u1", 100)
	a1.SyncStatus = schema.StatusSynced
	t1 := transaction("t1", "u1", "a1", schema.DirectionIn, 10)
	t1.SyncStatus = schema.StatusSynced

	require.NoError(t, store.ReplaceOwnerData(ctx, "u1", []*schema.Account{a1}, []*schema.Transaction{t1}))

	accounts, err := store.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "a1", accounts[0].ID)

	txs, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "t1", txs[0].ID)

	others, err := store.ListAccounts(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, others, 1, "other owners are untouched")

	tombs, err := store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

func TestReplaceOwnerData_RejectsOrphanKeepsOldData(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.InsertAccount(ctx, account("old", "u1", 100)))

	err := store.ReplaceOwnerData(ctx, "u1",
		[]*schema.Account{account("a1", "u1", 100)},
		[]*schema.Transaction{transaction("t1", "u1", "missing", schema.DirectionIn, 10)})
	require.Error(t, err)

	_, err = store.GetAccount(ctx, "old")
	assert.NoError(t, err)
}

func TestBalanceQueries(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAccount(ctx, account("a1", "u1", 100)))
	inactive := account("a2", "u1", 100)
	inactive.Active = false
	require.NoError(t, store.InsertAccount(ctx, inactive))

	salary := transaction("t1", "u1", "a1", schema.DirectionIn, 1000)
	salary.Category = "salary"
	food := transaction("t2", "u1", "a1", schema.DirectionOut, 300)
	food.Category = "food"
	food.OccurredAt = 2000
	moreFood := transaction("t3", "u1", "a1", schema.DirectionOut, 100)
	moreFood.Category = "food"
	transport := transaction("t4", "u1", "a1", schema.DirectionOut, 50)
	transport.Category = "transport"
	hidden := transaction("t5", "u1", "a2", schema.DirectionIn, 9999)
	for _, tx := range []*schema.Transaction{salary, food, moreFood, transport, hidden} {
		require.NoError(t, store.InsertTransaction(ctx, tx))
	}

	balance, err := store.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(550), balance)

	total, err := store.OwnerBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(550), total, "inactive accounts are excluded")

	out, err := store.TotalByDirection(ctx, "a1", schema.DirectionOut, 1500, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(300), out)

	cats, err := store.CategoryTotals(ctx, "a1", schema.DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, []CategoryTotal{{"food", 400}, {"transport", 50}}, cats)

	empty, err := store.Balance(ctx, "none")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestAccountBySource(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	acc := account("a1", "u1", 100)
	acc.SourceTag = "com.bca.android"
	require.NoError(t, store.InsertAccount(ctx, acc))

	got, err := store.AccountBySource(ctx, "u1", "com.bca.android")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	acc.Active = false
	require.NoError(t, store.UpdateAccount(ctx, acc))
	_, err = store.AccountBySource(ctx, "u1", "com.bca.android")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTombstonesAndCounts(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAccount(ctx, account("a1", "u1", 100)))
	require.NoError(t, store.InsertTransaction(ctx, transaction("t1", "u1", "a1", schema.DirectionIn, 10)))

	require.NoError(t, store.AddTombstone(ctx, &schema.Tombstone{Kind: schema.EntityAccount, ID: "a9", OwnerID: "u1", DeletedAt: 1}))
	require.NoError(t, store.AddTombstone(ctx, &schema.Tombstone{Kind: schema.EntityTransaction, ID: "t9", OwnerID: "u1", AccountID: "a9", DeletedAt: 2}))
	require.NoError(t, store.AddTombstone(ctx, &schema.Tombstone{Kind: schema.EntityTransaction, ID: "t9", OwnerID: "u1", AccountID: "a9", DeletedAt: 3}))

	tombs, err := store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tombs, 2)
	assert.Equal(t, schema.EntityTransaction, tombs[0].Kind, "transactions are retried before accounts")
	assert.Equal(t, int64(3), tombs[0].DeletedAt)

	counts, err := store.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Accounts[schema.StatusPending])
	assert.Equal(t, 1, counts.Transactions[schema.StatusPending])
	assert.Equal(t, 2, counts.Tombstones)
	assert.Equal(t, 4, counts.Pending())

	require.NoError(t, store.RemoveTombstone(ctx, schema.EntityAccount, "a9"))
	tombs, err = store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, tombs, 1)
}

func TestDeleteWithTombstone(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAccount(ctx, account("a1", "u1", 100)))
	require.NoError(t, store.InsertTransaction(ctx, transaction("t1", "u1", "a1", schema.DirectionIn, 10)))

	counts, err := store.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, counts.Empty())

	t.Run("cancelled context changes nothing", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		ts := &schema.Tombstone{Kind: schema.EntityAccount, ID: "a1", OwnerID: "u1", DeletedAt: 1}
		require.Error(t, store.DeleteWithTombstone(cctx, ts))

		_, err := store.GetAccount(ctx, "a1")
		require.NoError(t, err)
		tombs, err := store.ListTombstones(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, tombs)
	})

	t.Run("account delete cascades and records tombstone", func(t *testing.T) {
		ts := &schema.Tombstone{Kind: schema.EntityAccount, ID: "a1", OwnerID: "u1", DeletedAt: 2}
		require.NoError(t, store.DeleteWithTombstone(ctx, ts))

		_, err := store.GetAccount(ctx, "a1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetTransaction(ctx, "t1")
		assert.ErrorIs(t, err, ErrNotFound)

		tombs, err := store.ListTombstones(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, tombs, 1)
		assert.Equal(t, "a1", tombs[0].ID)

		counts, err := store.Counts(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, counts.Empty(), "an owed delete is local data")

		require.NoError(t, store.RemoveTombstone(ctx, schema.EntityAccount, "a1"))
		counts, err = store.Counts(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, counts.Empty())
	})

	t.Run("unknown kind", func(t *testing.T) {
		assert.Error(t, store.DeleteWithTombstone(ctx, &schema.Tombstone{Kind: "budget", ID: "b1", OwnerID: "u1"}))
	})
}

func TestClose(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "second close is a no-op")
}
