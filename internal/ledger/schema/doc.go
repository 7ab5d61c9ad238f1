// Package schema defines the ledger data model shared by the local store,
// the sync engine and the remote gateway.
//
// # Records
//
// Two entities are synchronized: accounts and the transactions booked
// against them. Both are owned by exactly one owner id and carry a
// SyncStatus that marks whether local changes still need to be pushed.
//
// Timestamps are Unix milliseconds (int64) and are copied verbatim between
// the device and the remote backend, so last-writer-wins comparisons never
// depend on time zone or clock formatting.
//
// # Record Files
//
// Records can also be exchanged as individual JSON files, one per record,
// named {id}.json:
//
//	{
//	  "id": "3f0c...",
//	  "owner_id": "u1",
//	  "account_id": "a1",
//	  "occurred_at": 1717171717000,
//	  "direction": "out",
//	  "amount": 25000,
//	  "category": "food",
//	  "created_at": 1717171717000,
//	  "updated_at": 1717171717000,
//	  "sync_status": "pending"
//	}
//
// The daemon's inbox watcher reads these files; tests use them as fixtures.
//
// # Usage Examples
//
//	acc := schema.NewAccount("u1", "BCA", schema.KindBank)
//	acc.Alias = "Payroll"
//	if err := acc.Validate(); err != nil {
//	    return err
//	}
//	fmt.Println(acc.DisplayName()) // "BCA - Payroll"
//
//	tx := schema.NewTransaction("u1", acc.ID, schema.DirectionOut, 25000)
//	if err := tx.Validate(); errors.Is(err, schema.ErrInvalidAmount) {
//	    // rejected before reaching storage
//	}
package schema
