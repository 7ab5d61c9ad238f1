package sync

import "github.com/batabung/batabung/internal/ledger/schema"

// Decision is what pull does with one remote record.
type Decision int

const (
	// Insert: no local copy exists.
	Insert Decision = iota
	// Overwrite: the remote copy is strictly newer.
	Overwrite
	// Keep: the local copy is as new or newer. No conflict is raised.
	Keep
)

func (d Decision) String() string {
	switch d {
	case Insert:
		return "insert"
	case Overwrite:
		return "overwrite"
	case Keep:
		return "keep"
	}
	return "unknown"
}

// Decide applies last-writer-wins by updatedAt. local is nil when the
// record does not exist on the device. Sync status plays no part.
func Decide(local, remote schema.Record) Decision {
	if local == nil {
		return Insert
	}
	if remote.Version() > local.Version() {
		return Overwrite
	}
	return Keep
}

// asSyncedAccount returns a copy of a remote account tagged synced.
func asSyncedAccount(acc *schema.Account) *schema.Account {
	cp := *acc
	cp.SyncStatus = schema.StatusSynced
	return &cp
}

func asSyncedTransaction(tx *schema.Transaction) *schema.Transaction {
	cp := *tx
	cp.SyncStatus = schema.StatusSynced
	return &cp
}
