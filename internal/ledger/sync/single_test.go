package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
)

// Owner u1 has a pending account a1 that the remote has never seen.
func TestSyncOne_Account(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	gw := newFakeGateway()
	a1 := acc("a1", 100, schema.StatusPending)
	require.NoError(t, store.InsertAccount(ctx, a1))
	engine := newTestEngine(t, store, gw)

	t.Run("network failure keeps pending", func(t *testing.T) {
		gw.setFailUpsert("a1", errNetwork)
		err := engine.SyncOne(ctx, a1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRemoteUpsertFailed)

		got, err := store.GetAccount(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, schema.StatusPending, got.SyncStatus)
	})

	t.Run("success marks synced", func(t *testing.T) {
		gw.setFailUpsert("a1", nil)
		require.NoError(t, engine.SyncOne(ctx, a1))

		got, err := store.GetAccount(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, schema.StatusSynced, got.SyncStatus)
		assert.True(t, gw.hasAccount("a1"))
	})

	assert.Equal(t, PhaseIdle, engine.State().Phase, "single-record sync does not publish")
}

func TestSyncOne_Transaction(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	gw := newFakeGateway()
	require.NoError(t, store.InsertAccount(ctx, acc("a1", 100, schema.StatusPending)))
	t1 := txn("t1", "a1", 500, 100, schema.StatusPending)
	require.NoError(t, store.InsertTransaction(ctx, t1))

	engine := newTestEngine(t, store, gw)
	require.NoError(t, engine.SyncOne(ctx, t1))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusSynced, got.SyncStatus)
}

func TestDeleteOne_AccountCascades(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	gw := newFakeGateway()

	a1 := acc("a1", 100, schema.StatusSynced)
	require.NoError(t, store.InsertAccount(ctx, a1))
	require.NoError(t, store.InsertTransaction(ctx, txn("t1", "a1", 10, 100, schema.StatusSynced)))
	require.NoError(t, store.InsertTransaction(ctx, txn("t2", "a1", 20, 100, schema.StatusSynced)))
	gw.accounts["a1"] = acc("a1", 100, "")
	gw.txs["t1"] = txn("t1", "a1", 10, 100, "")
	gw.txs["t2"] = txn("t2", "a1", 20, 100, "")

	engine := newTestEngine(t, store, gw)
	require.NoError(t, engine.DeleteOne(ctx, a1))

	// Local removal is visible immediately.
	_, err := store.GetAccount(ctx, "a1")
	assert.ErrorIs(t, err, db.ErrNotFound)
	for _, id := range []string{"t1", "t2"} {
		_, err := store.GetTransaction(ctx, id)
		assert.ErrorIs(t, err, db.ErrNotFound)
	}

	engine.Wait()
	assert.Equal(t, []string{
		"delete_transactions_by_account:a1",
		"delete_account:a1",
	}, gw.Calls())
	assert.False(t, gw.hasAccount("a1"))

	tombs, err := store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, tombs, "confirmed delete clears the tombstone")
}

func TestDeleteOne_CascadeFailureStillDeletesAccount(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	gw := newFakeGateway()
	gw.setFailDelete("delete_transactions_by_account:a1", errNetwork)

	a1 := acc("a1", 100, schema.StatusSynced)
	require.NoError(t, store.InsertAccount(ctx, a1))

	engine := newTestEngine(t, store, gw)
	require.NoError(t, engine.DeleteOne(ctx, a1))
	engine.Wait()

	assert.Contains(t, gw.Calls(), "delete_account:a1")

	tombs, err := store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tombs, 1, "partial remote delete is retried later")
}

func TestDeleteOne_SurvivesCallerCancellation(t *testing.T) {
	store := setupStore(t)
	gw := newFakeGateway()
	require.NoError(t, store.InsertAccount(context.Background(), acc("a1", 100, schema.StatusSynced)))
	t1 := txn("t1", "a1", 10, 100, schema.StatusSynced)
	require.NoError(t, store.InsertTransaction(context.Background(), t1))
	gw.txs["t1"] = txn("t1", "a1", 10, 100, "")

	ctx, cancel := context.WithCancel(context.Background())
	engine := newTestEngine(t, store, gw)
	require.NoError(t, engine.DeleteOne(ctx, t1))
	cancel() // caller navigates away

	engine.Wait()
	assert.Contains(t, gw.Calls(), "delete_transaction:t1")

	tombs, err := store.ListTombstones(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

func TestDeleteOne_FailureRetriedByFullSync(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	gw := newFakeGateway()
	gw.setFailDelete("delete_account:a1", errNetwork)

	a1 := acc("a1", 100, schema.StatusSynced)
	require.NoError(t, store.InsertAccount(ctx, a1))
	gw.accounts["a1"] = acc("a1", 100, "")

	engine := newTestEngine(t, store, gw)
	require.NoError(t, engine.DeleteOne(ctx, a1))
	engine.Wait()

	tombs, err := store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, schema.EntityAccount, tombs[0].Kind)

	// Still failing: the pull must not bring the account back.
	report, err := engine.FullSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeleteFailed)
	assert.Equal(t, 1, report.Accounts.Skipped)
	_, err = store.GetAccount(ctx, "a1")
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Remote recovers: the tombstone is drained.
	gw.setFailDelete("delete_account:a1", nil)
	engine.ResetState()
	report, err = engine.FullSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accounts.Deleted)
	assert.False(t, gw.hasAccount("a1"))

	tombs, err = store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

// cancellingStore cancels the caller's context as the local delete starts,
// like a screen that is closed while the delete is in flight.
type cancellingStore struct {
	LocalStore
	cancel context.CancelFunc
}

func (s *cancellingStore) DeleteWithTombstone(ctx context.Context, ts *schema.Tombstone) error {
	s.cancel()
	return s.LocalStore.DeleteWithTombstone(ctx, ts)
}

func TestDeleteOne_CancelledDuringLocalDelete(t *testing.T) {
	store := setupStore(t)
	gw := newFakeGateway()
	gw.setFailDelete("delete_account:a1", errNetwork)

	a1 := acc("a1", 100, schema.StatusSynced)
	require.NoError(t, store.InsertAccount(context.Background(), a1))
	gw.accounts["a1"] = acc("a1", 100, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := newTestEngine(t, &cancellingStore{LocalStore: store, cancel: cancel}, gw)
	require.NoError(t, engine.DeleteOne(ctx, a1))
	require.Error(t, ctx.Err())
	engine.Wait()

	assert.Contains(t, gw.Calls(), "delete_account:a1", "remote delete still attempted")
	tombs, err := store.ListTombstones(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, tombs, 1)

	report, err := engine.FullSync(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Accounts.Inserted)
	_, err = store.GetAccount(context.Background(), "a1")
	assert.ErrorIs(t, err, db.ErrNotFound, "deleted account must not come back")
}

func TestDeleteOne_AfterWaitLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	gw := newFakeGateway()
	t1 := txn("t1", "a1", 10, 100, schema.StatusSynced)
	require.NoError(t, store.InsertAccount(ctx, acc("a1", 100, schema.StatusSynced)))
	require.NoError(t, store.InsertTransaction(ctx, t1))

	engine := newTestEngine(t, store, gw)
	engine.Wait()
	require.NoError(t, engine.DeleteOne(ctx, t1))

	_, err := store.GetTransaction(ctx, "t1")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Empty(t, gw.Calls(), "no detached work after Wait")

	tombs, err := store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, "t1", tombs[0].ID)
}

// stuckDeletes holds every remote transaction delete until its context ends.
type stuckDeletes struct {
	*fakeGateway
	started chan struct{}
}

func (g *stuckDeletes) DeleteTransaction(ctx context.Context, id string) error {
	close(g.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestClose_HaltsRunningDeletes(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	gw := &stuckDeletes{fakeGateway: newFakeGateway(), started: make(chan struct{})}
	t1 := txn("t1", "a1", 10, 100, schema.StatusSynced)
	require.NoError(t, store.InsertAccount(ctx, acc("a1", 100, schema.StatusSynced)))
	require.NoError(t, store.InsertTransaction(ctx, t1))

	engine := newTestEngine(t, store, gw)
	require.NoError(t, engine.DeleteOne(ctx, t1))
	<-gw.started

	closeCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := engine.Close(closeCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Close returned, so the store is no longer in use by the engine.
	tombs, err := store.ListTombstones(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tombs, 1, "halted delete is retried by the next sync")
}
