package sync

import (
	"context"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// Bootstrap replaces the owner's local ledger with the remote one.
//
// Both remote collections are fetched into memory first. Local data is
// only touched after both fetches succeed, and then swapped in one atomic
// step when the store implements OwnerReplacer. A fetch failure leaves the
// device exactly as it was.
//
// Unsynced local edits are discarded. Use it for a fresh device or login.
func (e *Engine) Bootstrap(ctx context.Context, ownerID string) (*Report, error) {
	r, err := e.begin(ctx, "bootstrap", ownerID)
	if err != nil {
		return nil, err
	}
	err = e.bootstrap(ctx, ownerID, r.report)
	return e.finish(ctx, r, err, MsgBootstrapDone)
}

func (e *Engine) bootstrap(ctx context.Context, ownerID string, report *Report) error {
	const op = "bootstrap"
	log := e.log.With().Str("op", op).Str("owner", ownerID).Logger()

	if err := ctx.Err(); err != nil {
		return cancelled(op, err)
	}
	remoteAccounts, err := e.remote.FetchAccounts(ctx, ownerID)
	if err != nil {
		return &Error{Op: op, Kind: ErrRemoteFetchFailed, Entity: schema.EntityAccount, Err: err}
	}
	remoteTxs, err := e.remote.FetchTransactions(ctx, ownerID)
	if err != nil {
		return &Error{Op: op, Kind: ErrRemoteFetchFailed, Entity: schema.EntityTransaction, Err: err}
	}
	log.Debug().Int("accounts", len(remoteAccounts)).Int("transactions", len(remoteTxs)).Msg("fetched remote ledger")

	accounts := make([]*schema.Account, 0, len(remoteAccounts))
	known := make(map[string]bool, len(remoteAccounts))
	for _, acc := range remoteAccounts {
		if acc.OwnerID != ownerID {
			log.Warn().Str("account", acc.ID).Str("record_owner", acc.OwnerID).Msg("skipping account of another owner")
			report.Accounts.Skipped++
			continue
		}
		staged := asSyncedAccount(acc)
		if err := staged.Validate(); err != nil {
			log.Warn().Err(err).Str("account", acc.ID).Msg("skipping invalid remote account")
			report.Accounts.Skipped++
			continue
		}
		accounts = append(accounts, staged)
		known[acc.ID] = true
	}

	txs := make([]*schema.Transaction, 0, len(remoteTxs))
	for _, tx := range remoteTxs {
		if tx.OwnerID != ownerID {
			log.Warn().Str("transaction", tx.ID).Str("record_owner", tx.OwnerID).Msg("skipping transaction of another owner")
			report.Transactions.Skipped++
			continue
		}
		if !known[tx.AccountID] {
			log.Warn().Str("transaction", tx.ID).Str("account", tx.AccountID).Msg("dropping remote transaction without account")
			report.Transactions.Orphaned++
			continue
		}
		staged := asSyncedTransaction(tx)
		if err := staged.Validate(); err != nil {
			log.Warn().Err(err).Str("transaction", tx.ID).Msg("skipping invalid remote transaction")
			report.Transactions.Skipped++
			continue
		}
		txs = append(txs, staged)
	}

	if err := ctx.Err(); err != nil {
		return cancelled(op, err)
	}

	if replacer, ok := e.local.(OwnerReplacer); ok {
		if err := replacer.ReplaceOwnerData(ctx, ownerID, accounts, txs); err != nil {
			return opError(op, ErrLocalStoreFailed, err)
		}
	} else if err := e.replaceStepwise(ctx, ownerID, accounts, txs); err != nil {
		return err
	}

	report.Accounts.Inserted = len(accounts)
	report.Transactions.Inserted = len(txs)
	return nil
}

// replaceStepwise is the fallback for stores without OwnerReplacer: clear
// the owner's rows, then insert the staged set one record at a time.
func (e *Engine) replaceStepwise(ctx context.Context, ownerID string, accounts []*schema.Account, txs []*schema.Transaction) error {
	const op = "bootstrap"

	if err := e.local.DeleteTransactionsByOwner(ctx, ownerID); err != nil {
		return opError(op, ErrLocalStoreFailed, err)
	}
	if err := e.local.DeleteAccountsByOwner(ctx, ownerID); err != nil {
		return opError(op, ErrLocalStoreFailed, err)
	}

	tombs, err := e.local.ListTombstones(ctx, ownerID)
	if err != nil {
		return opError(op, ErrLocalStoreFailed, err)
	}
	for _, ts := range tombs {
		if err := e.local.RemoveTombstone(ctx, ts.Kind, ts.ID); err != nil {
			return opError(op, ErrLocalStoreFailed, err)
		}
	}

	for _, acc := range accounts {
		if err := e.local.InsertAccount(ctx, acc); err != nil {
			return recordError(op, ErrLocalStoreFailed, acc, err)
		}
	}
	for _, tx := range txs {
		if err := e.local.InsertTransaction(ctx, tx); err != nil {
			return recordError(op, ErrLocalStoreFailed, tx, err)
		}
	}
	return nil
}
