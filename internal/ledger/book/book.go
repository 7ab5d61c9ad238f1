// Package book is the ledger as the user interface sees it.
//
// Every mutation is written to the local store first and then handed to
// the sync engine. A remote failure never fails the mutation: the record
// stays pending and the next full sync pushes it.
package book

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
	"github.com/batabung/batabung/internal/logger"
)

// ErrNotOwner is returned when a record belongs to a different owner.
var ErrNotOwner = errors.New("record belongs to another owner")

// Store is the part of the local store the book uses.
type Store interface {
	InsertAccount(ctx context.Context, acc *schema.Account) error
	UpdateAccount(ctx context.Context, acc *schema.Account) error
	GetAccount(ctx context.Context, id string) (*schema.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error)
	AccountBySource(ctx context.Context, ownerID, sourceTag string) (*schema.Account, error)

	InsertTransaction(ctx context.Context, tx *schema.Transaction) error
	UpdateTransaction(ctx context.Context, tx *schema.Transaction) error
	GetTransaction(ctx context.Context, id string) (*schema.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string) ([]*schema.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string) ([]*schema.Transaction, error)

	Balance(ctx context.Context, accountID string) (int64, error)
	OwnerBalance(ctx context.Context, ownerID string) (int64, error)
	TotalByDirection(ctx context.Context, accountID string, dir schema.Direction, from, to int64) (int64, error)
	CategoryTotals(ctx context.Context, accountID string, dir schema.Direction) ([]db.CategoryTotal, error)
}

// Syncer pushes single-record changes. *sync.Engine implements it.
type Syncer interface {
	SyncOne(ctx context.Context, rec schema.Record) error
	DeleteOne(ctx context.Context, rec schema.Record) error
}

// Book reads and writes one owner's ledger.
type Book struct {
	owner  string
	store  Store
	syncer Syncer
	log    zerolog.Logger
}

// New creates a Book for ownerID. log may be nil.
func New(ownerID string, store Store, syncer Syncer, log *zerolog.Logger) *Book {
	return &Book{
		owner:  ownerID,
		store:  store,
		syncer: syncer,
		log:    logger.OrDefault(log, "book"),
	}
}

// Owner returns the owner this book belongs to.
func (b *Book) Owner() string {
	return b.owner
}

func (b *Book) checkOwner() error {
	if b.owner == "" {
		return ledgersync.ErrUnauthenticated
	}
	return nil
}

// push hands rec to the engine. Failures leave rec pending and are only logged.
func (b *Book) push(ctx context.Context, rec schema.Record) {
	if err := b.syncer.SyncOne(ctx, rec); err != nil {
		b.log.Warn().Err(err).Str(string(schema.KindOf(rec)), rec.RecordID()).Msg("sync deferred")
	}
}

// AddAccount stores a new account and pushes it.
func (b *Book) AddAccount(ctx context.Context, acc *schema.Account) error {
	if err := b.checkOwner(); err != nil {
		return err
	}
	acc.OwnerID = b.owner
	acc.SetDefaults()
	acc.SyncStatus = schema.StatusPending
	if err := acc.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	if err := b.store.InsertAccount(ctx, acc); err != nil {
		return err
	}
	b.push(ctx, acc)
	return nil
}

// Account returns one of the owner's accounts.
func (b *Book) Account(ctx context.Context, id string) (*schema.Account, error) {
	acc, err := b.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.OwnerID != b.owner {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotOwner)
	}
	return acc, nil
}

// Accounts lists the owner's accounts.
func (b *Book) Accounts(ctx context.Context) ([]*schema.Account, error) {
	if err := b.checkOwner(); err != nil {
		return nil, err
	}
	return b.store.ListAccounts(ctx, b.owner)
}

// UpdateAccount saves an edited account. It bumps UpdatedAt and marks the
// account pending before pushing it.
func (b *Book) UpdateAccount(ctx context.Context, acc *schema.Account) error {
	if err := b.checkOwner(); err != nil {
		return err
	}
	current, err := b.Account(ctx, acc.ID)
	if err != nil {
		return err
	}
	acc.OwnerID = b.owner
	acc.CreatedAt = current.CreatedAt
	if acc.UpdatedAt < current.UpdatedAt {
		acc.UpdatedAt = current.UpdatedAt
	}
	acc.Touch()
	if err := b.store.UpdateAccount(ctx, acc); err != nil {
		return err
	}
	b.push(ctx, acc)
	return nil
}

// ToggleActive flips an account between active and inactive.
func (b *Book) ToggleActive(ctx context.Context, id string) (*schema.Account, error) {
	acc, err := b.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	acc.Active = !acc.Active
	if err := b.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// DeleteAccount deletes an account and its transactions.
func (b *Book) DeleteAccount(ctx context.Context, id string) error {
	if err := b.checkOwner(); err != nil {
		return err
	}
	acc, err := b.Account(ctx, id)
	if err != nil {
		return err
	}
	return b.syncer.DeleteOne(ctx, acc)
}

// AccountBySource finds the active account linked to an external
// notification source.
func (b *Book) AccountBySource(ctx context.Context, sourceTag string) (*schema.Account, error) {
	if err := b.checkOwner(); err != nil {
		return nil, err
	}
	if sourceTag == "" {
		return nil, fmt.Errorf("empty source tag: %w", db.ErrNotFound)
	}
	return b.store.AccountBySource(ctx, b.owner, sourceTag)
}

// AddTransaction stores a new transaction on one of the owner's accounts
// and pushes it. A non-positive amount fails with schema.ErrInvalidAmount
// before anything is written.
func (b *Book) AddTransaction(ctx context.Context, tx *schema.Transaction) error {
	if err := b.checkOwner(); err != nil {
		return err
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("%w (got %d)", schema.ErrInvalidAmount, tx.Amount)
	}
	if _, err := b.Account(ctx, tx.AccountID); err != nil {
		return err
	}
	tx.OwnerID = b.owner
	tx.SetDefaults()
	tx.SyncStatus = schema.StatusPending
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	if err := b.store.InsertTransaction(ctx, tx); err != nil {
		return err
	}
	b.push(ctx, tx)
	return nil
}

// Transaction returns one of the owner's transactions.
func (b *Book) Transaction(ctx context.Context, id string) (*schema.Transaction, error) {
	tx, err := b.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.OwnerID != b.owner {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotOwner)
	}
	return tx, nil
}

// Transactions lists the transactions of one account, or of every
// account when accountID is empty.
func (b *Book) Transactions(ctx context.Context, accountID string) ([]*schema.Transaction, error) {
	if err := b.checkOwner(); err != nil {
		return nil, err
	}
	if accountID == "" {
		return b.store.ListTransactions(ctx, b.owner)
	}
	if _, err := b.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return b.store.ListTransactionsByAccount(ctx, accountID)
}

// UpdateTransaction saves an edited transaction.
func (b *Book) UpdateTransaction(ctx context.Context, tx *schema.Transaction) error {
	if err := b.checkOwner(); err != nil {
		return err
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("%w (got %d)", schema.ErrInvalidAmount, tx.Amount)
	}
	current, err := b.Transaction(ctx, tx.ID)
	if err != nil {
		return err
	}
	if tx.AccountID != current.AccountID {
		if _, err := b.Account(ctx, tx.AccountID); err != nil {
			return err
		}
	}
	tx.OwnerID = b.owner
	tx.CreatedAt = current.CreatedAt
	if tx.UpdatedAt < current.UpdatedAt {
		tx.UpdatedAt = current.UpdatedAt
	}
	tx.Touch()
	if err := b.store.UpdateTransaction(ctx, tx); err != nil {
		return err
	}
	b.push(ctx, tx)
	return nil
}

// DeleteTransaction deletes one transaction.
func (b *Book) DeleteTransaction(ctx context.Context, id string) error {
	if err := b.checkOwner(); err != nil {
		return err
	}
	tx, err := b.Transaction(ctx, id)
	if err != nil {
		return err
	}
	return b.syncer.DeleteOne(ctx, tx)
}

// Balance returns the derived balance of one account.
func (b *Book) Balance(ctx context.Context, accountID string) (int64, error) {
	if _, err := b.Account(ctx, accountID); err != nil {
		return 0, err
	}
	return b.store.Balance(ctx, accountID)
}

// TotalBalance returns the combined balance of the owner's active accounts.
func (b *Book) TotalBalance(ctx context.Context) (int64, error) {
	if err := b.checkOwner(); err != nil {
		return 0, err
	}
	return b.store.OwnerBalance(ctx, b.owner)
}

// Totals is money in and out of an account over a period.
type Totals struct {
	In  int64 `json:"in"`
	Out int64 `json:"out"`
}

// Net returns In - Out.
func (t Totals) Net() int64 {
	return t.In - t.Out
}

// Totals sums an account's transactions with occurredAt in [from, to).
// A zero bound is open.
func (b *Book) Totals(ctx context.Context, accountID string, from, to int64) (Totals, error) {
	var t Totals
	if _, err := b.Account(ctx, accountID); err != nil {
		return t, err
	}
	var err error
	if t.In, err = b.store.TotalByDirection(ctx, accountID, schema.DirectionIn, from, to); err != nil {
		return t, err
	}
	if t.Out, err = b.store.TotalByDirection(ctx, accountID, schema.DirectionOut, from, to); err != nil {
		return t, err
	}
	return t, nil
}

// CategoryTotals groups an account's spending or income by category.
func (b *Book) CategoryTotals(ctx context.Context, accountID string, dir schema.Direction) ([]db.CategoryTotal, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("invalid direction %q", dir)
	}
	if _, err := b.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return b.store.CategoryTotals(ctx, accountID, dir)
}
