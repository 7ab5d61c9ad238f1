// Package sync reconciles the on-device ledger with the remote backend.
//
// Overview
//
// The engine keeps two related collections, accounts and their
// transactions, consistent between the on-device store and the remote
// backend for one owner at a time.
//
//	caller (CLI, daemon, book)
//	     │  Bootstrap / FullSync / SyncOne / DeleteOne
//	     ▼
//	  Engine ──► LocalStore (SQLite)
//	     │  └──► Gateway (remote HTTP API)
//	     ▼
//	  Publisher ──► observers (CLI spinner, dashboard)
//
// Sync Status
//
// Every record carries a SyncStatus. Local writes set it to pending; a
// confirmed remote upsert sets it to synced. Records downloaded from the
// remote are stored as synced. The status is only a queue marker: when both
// sides changed, the copy with the larger updatedAt wins and the other is
// overwritten or ignored.
//
// Single Flight
//
// Bootstrap and FullSync refuse to start while the publisher is Syncing
// and fail with ErrSyncInProgress. A lock.Locker in Config extends the
// guard across processes.
//
// Usage
//
//	engine := sync.New(store, gateway, &sync.Config{Logger: &log})
//
//	states, cancel := engine.Publisher().Subscribe(8)
//	defer cancel()
//	go func() {
//	    for s := range states {
//	        fmt.Println(s)
//	    }
//	}()
//
//	if _, err := engine.FullSync(ctx, ownerID); errors.Is(err, sync.ErrRemoteFetchFailed) {
//	    // offline; the scheduler retries with backoff
//	}
//
// Deletes
//
// DeleteOne removes the record locally and schedules the remote delete in
// the background, detached from the caller's context. Until the remote
// delete is confirmed a tombstone keeps FullSync from downloading the
// record again and makes the next FullSync retry the delete.
package sync
