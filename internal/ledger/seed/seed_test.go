package seed

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func fixedOptions() Options {
	opts := DefaultOptions("u1")
	opts.Now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return opts
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate(fixedOptions())
	require.NoError(t, err)
	b, err := Generate(fixedOptions())
	require.NoError(t, err)

	require.Len(t, a.Accounts, 4)
	require.Len(t, a.Transactions, 100)
	assert.Equal(t, a.Accounts[0].ID, b.Accounts[0].ID)
	assert.Equal(t, a.Transactions[99].ID, b.Transactions[99].ID)
	assert.Equal(t, a.Transactions[99].Amount, b.Transactions[99].Amount)

	for _, acc := range a.Accounts {
		require.NoError(t, acc.Validate())
		assert.Equal(t, schema.StatusPending, acc.SyncStatus)
	}
	for i, tx := range a.Transactions {
		require.NoError(t, tx.Validate())
		if i > 0 {
			assert.LessOrEqual(t, a.Transactions[i-1].OccurredAt, tx.OccurredAt)
		}
	}
}

func TestGenerateWrapsCatalog(t *testing.T) {
	opts := fixedOptions()
	opts.Accounts = 20
	opts.TransactionsPerAccount = 1
	opts.SyncedPct = 1

	l, err := Generate(opts)
	require.NoError(t, err)
	assert.Equal(t, l.Accounts[0].Name, l.Accounts[15].Name)
	assert.Equal(t, "#2", l.Accounts[15].Alias)
	for _, tx := range l.Transactions {
		assert.Equal(t, schema.DirectionIn, tx.Direction)
		assert.Equal(t, schema.StatusSynced, tx.SyncStatus)
	}
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	_, err := Generate(Options{Accounts: 1})
	assert.Error(t, err)
	_, err = Generate(Options{Owner: "u1"})
	assert.Error(t, err)
}

func TestPopulateMatchesBalances(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	l, err := Generate(fixedOptions())
	require.NoError(t, err)
	require.NoError(t, Populate(ctx, store, l))

	for _, acc := range l.Accounts {
		got, err := store.Balance(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, l.Balance(acc.ID), got, acc.Name)
	}
}

// acceptingRemote stores nothing and accepts every write.
type acceptingRemote struct{}

func (acceptingRemote) FetchAccounts(context.Context, string) ([]*schema.Account, error) {
	return nil, nil
}
func (acceptingRemote) FetchTransactions(context.Context, string) ([]*schema.Transaction, error) {
	return nil, nil
}
func (acceptingRemote) UpsertAccount(context.Context, *schema.Account) error         { return nil }
func (acceptingRemote) UpsertTransaction(context.Context, *schema.Transaction) error { return nil }
func (acceptingRemote) DeleteAccount(context.Context, string) error                  { return nil }
func (acceptingRemote) DeleteTransaction(context.Context, string) error              { return nil }
func (acceptingRemote) DeleteTransactionsByAccount(context.Context, string) error    { return nil }

func TestStressDuringFullSync(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress run in short mode")
	}
	store := openStore(t)
	ctx := context.Background()

	opts := fixedOptions()
	opts.Accounts = 6
	opts.TransactionsPerAccount = 50
	l, err := Generate(opts)
	require.NoError(t, err)
	require.NoError(t, Populate(ctx, store, l))

	log := zerolog.Nop()
	engine := ledgersync.New(store, acceptingRemote{}, &ledgersync.Config{Logger: &log})

	stressCtx, cancel := context.WithCancel(ctx)
	type result struct {
		stats *LatencyStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := Stress(stressCtx, store, "u1", 8)
		done <- result{stats, err}
	}()

	report, err := engine.FullSync(ctx, "u1")
	cancel()
	require.NoError(t, err)
	assert.Equal(t, 6, report.Accounts.Pushed)
	assert.Equal(t, 300, report.Transactions.Pushed)

	res := <-done
	require.NoError(t, res.err)
	assert.Zero(t, res.stats.Errors)

	counts, err := store.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, counts.Pending())

	var buf bytes.Buffer
	res.stats.Print(&buf)
	assert.Contains(t, buf.String(), "Total Queries")
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}
	stats := computeLatencyStats(durations)
	assert.Equal(t, time.Millisecond, stats.Min)
	assert.Equal(t, 100*time.Millisecond, stats.Max)
	assert.Equal(t, 51*time.Millisecond, stats.P50)
	assert.Equal(t, 100, stats.TotalQueries)

	assert.Equal(t, &LatencyStats{}, computeLatencyStats(nil))
}
