package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	gosync "sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
)

var errNetwork = errors.New("network unreachable")

// fakeGateway is an in-memory remote with failure injection and a call log.
type fakeGateway struct {
	mu       gosync.Mutex
	accounts map[string]*schema.Account
	txs      map[string]*schema.Transaction
	calls    []string

	failFetch  error
	failUpsert map[string]error // by record id
	failDelete map[string]error // by call name, e.g. "delete_account:a1"

	// beforeUpsert runs inside UpsertAccount/UpsertTransaction.
	beforeUpsert func(id string)
	// fetchGate, when set, blocks FetchAccounts until closed.
	fetchGate chan struct{}
	fetching  chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		accounts:   map[string]*schema.Account{},
		txs:        map[string]*schema.Transaction{},
		failUpsert: map[string]error{},
		failDelete: map[string]error{},
	}
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) upserts() int {
	n := 0
	for _, c := range g.Calls() {
		if len(c) > 7 && c[:7] == "upsert_" {
			n++
		}
	}
	return n
}

func (g *fakeGateway) FetchAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error) {
	if g.fetchGate != nil {
		if g.fetching != nil {
			close(g.fetching)
			g.fetching = nil
		}
		select {
		case <-g.fetchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_accounts")
	if g.failFetch != nil {
		return nil, g.failFetch
	}
	var out []*schema.Account
	for _, acc := range g.accounts {
		if acc.OwnerID == ownerID {
			cp := *acc
			cp.SyncStatus = ""
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGateway) FetchTransactions(ctx context.Context, ownerID string) ([]*schema.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fetch_transactions")
	if g.failFetch != nil {
		return nil, g.failFetch
	}
	var out []*schema.Transaction
	for _, tx := range g.txs {
		if tx.OwnerID == ownerID {
			cp := *tx
			cp.SyncStatus = ""
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGateway) UpsertAccount(ctx context.Context, acc *schema.Account) error {
	if g.beforeUpsert != nil {
		g.beforeUpsert(acc.ID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("upsert_account:" + acc.ID)
	if err := g.failUpsert[acc.ID]; err != nil {
		return err
	}
	cp := *acc
	g.accounts[acc.ID] = &cp
	return nil
}

func (g *fakeGateway) UpsertTransaction(ctx context.Context, tx *schema.Transaction) error {
	if g.beforeUpsert != nil {
		g.beforeUpsert(tx.ID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("upsert_transaction:" + tx.ID)
	if err := g.failUpsert[tx.ID]; err != nil {
		return err
	}
	cp := *tx
	g.txs[tx.ID] = &cp
	return nil
}

func (g *fakeGateway) DeleteAccount(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	call := "delete_account:" + id
	g.record(call)
	if err := g.failDelete[call]; err != nil {
		return err
	}
	delete(g.accounts, id)
	return nil
}

func (g *fakeGateway) DeleteTransaction(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	call := "delete_transaction:" + id
	g.record(call)
	if err := g.failDelete[call]; err != nil {
		return err
	}
	delete(g.txs, id)
	return nil
}

func (g *fakeGateway) DeleteTransactionsByAccount(ctx context.Context, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	call := "delete_transactions_by_account:" + accountID
	g.record(call)
	if err := g.failDelete[call]; err != nil {
		return err
	}
	for id, tx := range g.txs {
		if tx.AccountID == accountID {
			delete(g.txs, id)
		}
	}
	return nil
}

func (g *fakeGateway) setFailFetch(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failFetch = err
}

func (g *fakeGateway) setFailUpsert(id string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failUpsert, id)
		return
	}
	g.failUpsert[id] = err
}

func (g *fakeGateway) setFailDelete(call string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failDelete, call)
		return
	}
	g.failDelete[call] = err
}

func (g *fakeGateway) hasAccount(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.accounts[id]
	return ok
}

// stepwiseStore hides ReplaceOwnerData so Bootstrap takes the fallback path.
type stepwiseStore struct {
	LocalStore
}

func setupStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func newTestEngine(t *testing.T, local LocalStore, gw Gateway) *Engine {
	t.Helper()
	log := zerolog.Nop()
	e := New(local, gw, &Config{Logger: &log})
	t.Cleanup(e.Wait)
	return e
}

func acc(id string, updatedAt int64, status schema.SyncStatus) *schema.Account {
	return &schema.Account{
		ID:         id,
		OwnerID:    "u1",
		Name:       "Account " + id,
		Kind:       schema.KindBank,
		Active:     true,
		CreatedAt:  1,
		UpdatedAt:  updatedAt,
		SyncStatus: status,
	}
}

func txn(id, accountID string, amount, updatedAt int64, status schema.SyncStatus) *schema.Transaction {
	return &schema.Transaction{
		ID:         id,
		OwnerID:    "u1",
		AccountID:  accountID,
		OccurredAt: 1,
		Direction:  schema.DirectionOut,
		Amount:     amount,
		CreatedAt:  1,
		UpdatedAt:  updatedAt,
		SyncStatus: status,
	}
}
