package schema

// EntityKind names the table a record lives in.
type EntityKind string

const (
	EntityAccount     EntityKind = "account"
	EntityTransaction EntityKind = "transaction"
)

// KindOf returns the entity kind of a record.
func KindOf(rec Record) EntityKind {
	switch rec.(type) {
	case *Account:
		return EntityAccount
	case *Transaction:
		return EntityTransaction
	}
	panic("schema: unknown record type")
}

// Tombstone remembers a local delete whose remote delete has not been
// confirmed yet. It is retried on the next full sync and suppresses
// re-downloading the deleted row in the meantime.
type Tombstone struct {
	Kind      EntityKind `json:"kind"`
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	AccountID string     `json:"account_id,omitempty"`
	DeletedAt int64      `json:"deleted_at"`
}

// TombstoneFor builds a tombstone for a record deleted now.
func TombstoneFor(rec Record) *Tombstone {
	ts := &Tombstone{
		Kind:      KindOf(rec),
		ID:        rec.RecordID(),
		OwnerID:   rec.Owner(),
		DeletedAt: NowMillis(),
	}
	if tx, ok := rec.(*Transaction); ok {
		ts.AccountID = tx.AccountID
	}
	return ts
}
