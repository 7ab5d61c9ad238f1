package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
	"github.com/batabung/batabung/internal/logger"
)

// RejectedSuffix is appended to inbox files that could not be imported.
const RejectedSuffix = ".rejected"

// InboxStore is the local store as used by the inbox.
type InboxStore interface {
	GetAccount(ctx context.Context, id string) (*schema.Account, error)
	GetTransaction(ctx context.Context, id string) (*schema.Transaction, error)
	InsertAccount(ctx context.Context, acc *schema.Account) error
	InsertTransaction(ctx context.Context, tx *schema.Transaction) error
}

// Pusher pushes one record right after it is written locally.
type Pusher interface {
	SyncOne(ctx context.Context, rec schema.Record) error
}

// errRejected marks a file as permanently unimportable.
var errRejected = errors.New("rejected")

// Inbox imports account and transaction JSON files dropped into
// {dir}/accounts and {dir}/transactions.
//
// Each file becomes a pending local record and is pushed right away. A
// processed file is removed; a file that cannot be imported is renamed
// with RejectedSuffix so it is not retried.
type Inbox struct {
	dir    string
	owner  string
	store  InboxStore
	pusher Pusher
	log    zerolog.Logger
}

// NewInbox creates an inbox rooted at dir for owner. pusher may be nil, in
// which case records wait for the next full sync.
func NewInbox(dir, owner string, store InboxStore, pusher Pusher, log *zerolog.Logger) *Inbox {
	return &Inbox{
		dir:    dir,
		owner:  owner,
		store:  store,
		pusher: pusher,
		log:    logger.OrDefault(log, "inbox"),
	}
}

func (in *Inbox) AccountsDir() string     { return filepath.Join(in.dir, "accounts") }
func (in *Inbox) TransactionsDir() string { return filepath.Join(in.dir, "transactions") }

// Ensure creates the inbox directories.
func (in *Inbox) Ensure() error {
	for _, dir := range []string{in.AccountsDir(), in.TransactionsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create inbox %s: %w", dir, err)
		}
	}
	return nil
}

// Scan imports every file already in the inbox, accounts first, and
// returns how many were imported.
func (in *Inbox) Scan(ctx context.Context) (int, error) {
	imported := 0
	for _, src := range []struct {
		dir string
		typ FileType
	}{
		{in.AccountsDir(), TypeAccount},
		{in.TransactionsDir(), TypeTransaction},
	} {
		paths, err := filepath.Glob(filepath.Join(src.dir, "*.json"))
		if err != nil {
			return imported, err
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return imported, err
			}
			if err := in.Process(ctx, FileEvent{Path: path, Type: src.typ, Op: OpCreate}); err == nil {
				imported++
			}
		}
	}
	return imported, nil
}

// Process imports one file. A file that no longer exists is ignored.
func (in *Inbox) Process(ctx context.Context, ev FileEvent) error {
	data, err := os.ReadFile(ev.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read inbox file: %w", err)
	}

	var rec schema.Record
	switch ev.Type {
	case TypeAccount:
		rec, err = in.importAccount(ctx, data)
	case TypeTransaction:
		rec, err = in.importTransaction(ctx, data)
	default:
		err = fmt.Errorf("%w: unknown file type %v", errRejected, ev.Type)
	}

	log := in.log.With().Str("file", filepath.Base(ev.Path)).Str("type", ev.Type.String()).Logger()
	if err != nil {
		if errors.Is(err, errRejected) {
			log.Warn().Err(err).Msg("rejecting inbox file")
			if rerr := os.Rename(ev.Path, ev.Path+RejectedSuffix); rerr != nil {
				log.Error().Err(rerr).Msg("failed to mark inbox file rejected")
			}
		}
		return err
	}

	if err := os.Remove(ev.Path); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Msg("failed to remove processed inbox file")
	}
	log.Info().Str("id", rec.RecordID()).Msg("imported inbox file")

	if in.pusher != nil {
		if err := in.pusher.SyncOne(ctx, rec); err != nil {
			log.Warn().Err(err).Str("id", rec.RecordID()).Msg("push failed, record stays pending")
		}
	}
	return nil
}

func (in *Inbox) importAccount(ctx context.Context, data []byte) (*schema.Account, error) {
	var acc schema.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", errRejected, err)
	}
	if err := in.claim(&acc.OwnerID); err != nil {
		return nil, err
	}
	acc.SetDefaults()
	acc.SyncStatus = schema.StatusPending

	existing, err := in.store.GetAccount(ctx, acc.ID)
	switch {
	case err == nil:
		if existing.OwnerID != in.owner {
			return nil, fmt.Errorf("%w: account %s belongs to another owner", errRejected, acc.ID)
		}
		acc.CreatedAt = existing.CreatedAt
		acc.UpdatedAt = existing.UpdatedAt
		acc.Touch()
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	if err := acc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errRejected, err)
	}
	if err := in.store.InsertAccount(ctx, &acc); err != nil {
		return nil, fmt.Errorf("failed to store account %s: %w", acc.ID, err)
	}
	return &acc, nil
}

func (in *Inbox) importTransaction(ctx context.Context, data []byte) (*schema.Transaction, error) {
	var tx schema.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", errRejected, err)
	}
	if err := in.claim(&tx.OwnerID); err != nil {
		return nil, err
	}
	tx.SetDefaults()
	tx.SyncStatus = schema.StatusPending

	// Amount and the other field rules are checked before any store access.
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errRejected, err)
	}

	acc, err := in.store.GetAccount(ctx, tx.AccountID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && acc.OwnerID != in.owner) {
		return nil, fmt.Errorf("%w: unknown account %s", errRejected, tx.AccountID)
	}
	if err != nil {
		return nil, err
	}

	existing, err := in.store.GetTransaction(ctx, tx.ID)
	switch {
	case err == nil:
		if existing.OwnerID != in.owner {
			return nil, fmt.Errorf("%w: transaction %s belongs to another owner", errRejected, tx.ID)
		}
		tx.CreatedAt = existing.CreatedAt
		tx.UpdatedAt = existing.UpdatedAt
		tx.Touch()
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	if err := in.store.InsertTransaction(ctx, &tx); err != nil {
		return nil, fmt.Errorf("failed to store transaction %s: %w", tx.ID, err)
	}
	return &tx, nil
}

// claim fills in the owner or rejects a record of another owner.
func (in *Inbox) claim(owner *string) error {
	switch *owner {
	case "":
		*owner = in.owner
	case in.owner:
	default:
		return fmt.Errorf("%w: record owner %q is not the signed-in owner", errRejected, *owner)
	}
	return nil
}
