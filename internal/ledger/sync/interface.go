package sync

import (
	"context"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// LocalStore is the on-device store the engine reads and writes.
//
// The store is shared with the presentation layer, so every method must be
// atomic on its own. Getters return an error wrapping db.ErrNotFound when
// the record does not exist.
type LocalStore interface {
	InsertAccount(ctx context.Context, acc *schema.Account) error
	GetAccount(ctx context.Context, id string) (*schema.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error)
	AccountsByStatus(ctx context.Context, ownerID string, status schema.SyncStatus) ([]*schema.Account, error)
	// MarkAccountSynced sets synced only if the row's updatedAt still
	// matches; false means it was edited meanwhile.
	MarkAccountSynced(ctx context.Context, id string, updatedAt int64) (bool, error)
	DeleteAccountsByOwner(ctx context.Context, ownerID string) error

	InsertTransaction(ctx context.Context, tx *schema.Transaction) error
	GetTransaction(ctx context.Context, id string) (*schema.Transaction, error)
	TransactionsByStatus(ctx context.Context, ownerID string, status schema.SyncStatus) ([]*schema.Transaction, error)
	MarkTransactionSynced(ctx context.Context, id string, updatedAt int64) (bool, error)
	DeleteTransactionsByOwner(ctx context.Context, ownerID string) error

	// DeleteWithTombstone deletes the record named by ts and stores ts in
	// one atomic step. Deleting an account deletes its transactions.
	DeleteWithTombstone(ctx context.Context, ts *schema.Tombstone) error
	ListTombstones(ctx context.Context, ownerID string) ([]*schema.Tombstone, error)
	RemoveTombstone(ctx context.Context, kind schema.EntityKind, id string) error
}

// OwnerReplacer is implemented by stores that can swap an owner's data in
// one atomic step. Bootstrap uses it when available.
type OwnerReplacer interface {
	ReplaceOwnerData(ctx context.Context, ownerID string, accounts []*schema.Account, txs []*schema.Transaction) error
}

// Gateway is the remote backend as seen by the engine. Field renaming to
// the wire format happens behind it.
type Gateway interface {
	FetchAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error)
	FetchTransactions(ctx context.Context, ownerID string) ([]*schema.Transaction, error)
	UpsertAccount(ctx context.Context, acc *schema.Account) error
	UpsertTransaction(ctx context.Context, tx *schema.Transaction) error
	DeleteAccount(ctx context.Context, id string) error
	DeleteTransaction(ctx context.Context, id string) error
	DeleteTransactionsByAccount(ctx context.Context, accountID string) error
}
