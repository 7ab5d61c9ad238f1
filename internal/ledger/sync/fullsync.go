package sync

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
)

// FullSync pushes local changes, then pulls remote ones.
//
// Push order: owed remote deletes, pending accounts, pending transactions.
// A failed upsert or delete leaves the record queued for the next run and
// does not fail the sync. Pull starts only after push completes and applies
// last-writer-wins per record, accounts before transactions.
//
// A remote fetch failure or any local store failure aborts the run.
// Cancelling ctx stops between records; every record already handled stays
// committed.
func (e *Engine) FullSync(ctx context.Context, ownerID string) (*Report, error) {
	r, err := e.begin(ctx, "full_sync", ownerID)
	if err != nil {
		return nil, err
	}
	err = e.fullSync(ctx, ownerID, r.report)
	return e.finish(ctx, r, err, MsgSyncDone)
}

func (e *Engine) fullSync(ctx context.Context, ownerID string, report *Report) error {
	if err := ctx.Err(); err != nil {
		return cancelled("full_sync", err)
	}
	log := e.log.With().Str("op", "full_sync").Str("owner", ownerID).Logger()

	if err := e.pushTombstones(ctx, ownerID, report, log); err != nil {
		return err
	}
	if err := e.pushAccounts(ctx, ownerID, report, log); err != nil {
		return err
	}
	if err := e.pushTransactions(ctx, ownerID, report, log); err != nil {
		return err
	}

	// Deletes still owed must not be undone by the pull.
	tombs, err := e.local.ListTombstones(ctx, ownerID)
	if err != nil {
		return opError("pull", ErrLocalStoreFailed, err)
	}
	deleted := make(map[schema.EntityKind]map[string]bool, 2)
	deleted[schema.EntityAccount] = map[string]bool{}
	deleted[schema.EntityTransaction] = map[string]bool{}
	for _, ts := range tombs {
		deleted[ts.Kind][ts.ID] = true
	}

	if err := e.pullAccounts(ctx, ownerID, deleted[schema.EntityAccount], report, log); err != nil {
		return err
	}
	return e.pullTransactions(ctx, ownerID, deleted[schema.EntityTransaction], report, log)
}

func (e *Engine) pushTombstones(ctx context.Context, ownerID string, report *Report, log zerolog.Logger) error {
	tombs, err := e.local.ListTombstones(ctx, ownerID)
	if err != nil {
		return opError("push", ErrLocalStoreFailed, err)
	}

	for _, ts := range tombs {
		if err := ctx.Err(); err != nil {
			return cancelled("push", err)
		}
		if err := e.remoteDelete(ctx, ts.Kind, ts.ID); err != nil {
			log.Warn().Err(err).Str(string(ts.Kind), ts.ID).Msg("remote delete failed, will retry")
			report.DeleteFailed++
			continue
		}
		if err := e.local.RemoveTombstone(ctx, ts.Kind, ts.ID); err != nil {
			return opError("push", ErrLocalStoreFailed, err)
		}
		switch ts.Kind {
		case schema.EntityAccount:
			report.Accounts.Deleted++
		case schema.EntityTransaction:
			report.Transactions.Deleted++
		}
	}
	return nil
}

func (e *Engine) pushAccounts(ctx context.Context, ownerID string, report *Report, log zerolog.Logger) error {
	pending, err := e.local.AccountsByStatus(ctx, ownerID, schema.StatusPending)
	if err != nil {
		return opError("push", ErrLocalStoreFailed, err)
	}

	for _, acc := range pending {
		if err := ctx.Err(); err != nil {
			return cancelled("push", err)
		}
		if err := e.remote.UpsertAccount(ctx, acc); err != nil {
			log.Warn().Err(err).Str("account", acc.ID).Msg("push failed, record stays pending")
			report.Accounts.PushFailed++
			continue
		}
		marked, err := e.local.MarkAccountSynced(ctx, acc.ID, acc.UpdatedAt)
		if err != nil {
			return recordError("push", ErrLocalStoreFailed, acc, err)
		}
		if !marked {
			log.Debug().Str("account", acc.ID).Msg("account changed during push, stays pending")
		}
		report.Accounts.Pushed++
	}
	return nil
}

func (e *Engine) pushTransactions(ctx context.Context, ownerID string, report *Report, log zerolog.Logger) error {
	pending, err := e.local.TransactionsByStatus(ctx, ownerID, schema.StatusPending)
	if err != nil {
		return opError("push", ErrLocalStoreFailed, err)
	}

	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return cancelled("push", err)
		}
		if err := e.remote.UpsertTransaction(ctx, tx); err != nil {
			log.Warn().Err(err).Str("transaction", tx.ID).Msg("push failed, record stays pending")
			report.Transactions.PushFailed++
			continue
		}
		marked, err := e.local.MarkTransactionSynced(ctx, tx.ID, tx.UpdatedAt)
		if err != nil {
			return recordError("push", ErrLocalStoreFailed, tx, err)
		}
		if !marked {
			log.Debug().Str("transaction", tx.ID).Msg("transaction changed during push, stays pending")
		}
		report.Transactions.Pushed++
	}
	return nil
}

func (e *Engine) pullAccounts(ctx context.Context, ownerID string, deleted map[string]bool, report *Report, log zerolog.Logger) error {
	remote, err := e.remote.FetchAccounts(ctx, ownerID)
	if err != nil {
		return &Error{Op: "pull", Kind: ErrRemoteFetchFailed, Entity: schema.EntityAccount, Err: err}
	}
	if len(remote) == 0 {
		log.Debug().Msg("no remote accounts for owner")
	}

	for _, acc := range remote {
		if err := ctx.Err(); err != nil {
			return cancelled("pull", err)
		}
		if deleted[acc.ID] || acc.OwnerID != ownerID {
			report.Accounts.Skipped++
			continue
		}
		staged := asSyncedAccount(acc)
		if err := staged.Validate(); err != nil {
			log.Warn().Err(err).Str("account", acc.ID).Msg("skipping invalid remote account")
			report.Accounts.Skipped++
			continue
		}

		var local schema.Record
		existing, err := e.local.GetAccount(ctx, acc.ID)
		switch {
		case err == nil:
			local = existing
		case !errors.Is(err, db.ErrNotFound):
			return recordError("pull", ErrLocalStoreFailed, acc, err)
		}

		decision := Decide(local, acc)
		if decision == Keep {
			report.Accounts.Skipped++
			continue
		}
		if err := e.local.InsertAccount(ctx, staged); err != nil {
			return recordError("pull", ErrLocalStoreFailed, acc, err)
		}
		if decision == Insert {
			report.Accounts.Inserted++
		} else {
			report.Accounts.Updated++
		}
	}
	return nil
}

func (e *Engine) pullTransactions(ctx context.Context, ownerID string, deleted map[string]bool, report *Report, log zerolog.Logger) error {
	remote, err := e.remote.FetchTransactions(ctx, ownerID)
	if err != nil {
		return &Error{Op: "pull", Kind: ErrRemoteFetchFailed, Entity: schema.EntityTransaction, Err: err}
	}

	accounts, err := e.local.ListAccounts(ctx, ownerID)
	if err != nil {
		return opError("pull", ErrLocalStoreFailed, err)
	}
	present := make(map[string]bool, len(accounts))
	for _, acc := range accounts {
		present[acc.ID] = true
	}

	for _, tx := range remote {
		if err := ctx.Err(); err != nil {
			return cancelled("pull", err)
		}
		if deleted[tx.ID] || tx.OwnerID != ownerID {
			report.Transactions.Skipped++
			continue
		}
		if !present[tx.AccountID] {
			log.Debug().Str("transaction", tx.ID).Str("account", tx.AccountID).Msg("skipping transaction without local account")
			report.Transactions.Orphaned++
			continue
		}
		staged := asSyncedTransaction(tx)
		if err := staged.Validate(); err != nil {
			log.Warn().Err(err).Str("transaction", tx.ID).Msg("skipping invalid remote transaction")
			report.Transactions.Skipped++
			continue
		}

		var local schema.Record
		existing, err := e.local.GetTransaction(ctx, tx.ID)
		switch {
		case err == nil:
			local = existing
		case !errors.Is(err, db.ErrNotFound):
			return recordError("pull", ErrLocalStoreFailed, tx, err)
		}

		decision := Decide(local, tx)
		if decision == Keep {
			report.Transactions.Skipped++
			continue
		}
		if err := e.local.InsertTransaction(ctx, staged); err != nil {
			return recordError("pull", ErrLocalStoreFailed, tx, err)
		}
		if decision == Insert {
			report.Transactions.Inserted++
		} else {
			report.Transactions.Updated++
		}
	}
	return nil
}
