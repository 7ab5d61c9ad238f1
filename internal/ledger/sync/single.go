package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// SyncOne pushes a single record right after a local create or update.
//
// On success the record is marked synced, unless it was edited again in
// the meantime. On failure it stays pending for the next FullSync and the
// returned error wraps ErrRemoteUpsertFailed. There is no retry here.
// SyncOne does not change the published state.
func (e *Engine) SyncOne(ctx context.Context, rec schema.Record) error {
	const op = "sync_one"
	if rec.Owner() == "" {
		return opError(op, ErrUnauthenticated, nil)
	}

	var (
		pushErr error
		marked  bool
		err     error
	)
	switch r := rec.(type) {
	case *schema.Account:
		if pushErr = e.remote.UpsertAccount(ctx, r); pushErr == nil {
			marked, err = e.local.MarkAccountSynced(ctx, r.ID, r.UpdatedAt)
		}
	case *schema.Transaction:
		if pushErr = e.remote.UpsertTransaction(ctx, r); pushErr == nil {
			marked, err = e.local.MarkTransactionSynced(ctx, r.ID, r.UpdatedAt)
		}
	default:
		return fmt.Errorf("%s: unsupported record type %T", op, rec)
	}

	log := e.log.With().Str("op", op).Str(string(schema.KindOf(rec)), rec.RecordID()).Logger()
	if pushErr != nil {
		log.Warn().Err(pushErr).Msg("push failed, record stays pending")
		return recordError(op, ErrRemoteUpsertFailed, rec, pushErr)
	}
	if err != nil {
		return recordError(op, ErrLocalStoreFailed, rec, err)
	}
	if !marked {
		log.Debug().Msg("record changed during push, stays pending")
	}
	return nil
}

// DeleteOne deletes a record locally, then removes it remotely in the
// background.
//
// The local delete and its tombstone are committed together and that
// error is returned. Deleting an account also deletes its transactions.
// Once the owner is known the whole sequence runs under
// context.WithoutCancel, so cancelling ctx never leaves a local delete
// without a tombstone or abandons the remote delete. The detached remote
// delete clears the tombstone on success; otherwise FullSync retries it.
// Use Wait or Close to drain pending remote deletes.
func (e *Engine) DeleteOne(ctx context.Context, rec schema.Record) error {
	const op = "delete_one"
	if rec.Owner() == "" {
		return opError(op, ErrUnauthenticated, nil)
	}
	switch rec.(type) {
	case *schema.Account, *schema.Transaction:
	default:
		return fmt.Errorf("%s: unsupported record type %T", op, rec)
	}

	detached := context.WithoutCancel(ctx)
	ts := schema.TombstoneFor(rec)
	if err := e.local.DeleteWithTombstone(detached, ts); err != nil {
		return recordError(op, ErrLocalStoreFailed, rec, err)
	}

	log := e.log.With().Str("op", op).Str(string(ts.Kind), ts.ID).Logger()
	if !e.track() {
		log.Debug().Msg("engine closed, remote delete left to next sync")
		return nil
	}
	go func() {
		defer e.detached.Done()

		dctx, cancel := context.WithTimeout(detached, e.deleteTimeout)
		defer cancel()
		stop := context.AfterFunc(e.halt, cancel)
		defer stop()

		if err := e.remoteDelete(dctx, ts.Kind, ts.ID); err != nil {
			log.Warn().Err(err).Msg("remote delete failed, will retry on next sync")
			return
		}
		if err := e.local.RemoveTombstone(detached, ts.Kind, ts.ID); err != nil {
			log.Error().Err(err).Msg("failed to clear tombstone")
		}
	}()
	return nil
}

// remoteDelete deletes one record remotely. For an account its
// transactions are deleted first; the account delete is attempted even if
// that fails. Both steps are idempotent, so a failure of either keeps the
// tombstone and the whole sequence is retried later.
func (e *Engine) remoteDelete(ctx context.Context, kind schema.EntityKind, id string) error {
	switch kind {
	case schema.EntityAccount:
		cascadeErr := e.remote.DeleteTransactionsByAccount(ctx, id)
		if cascadeErr != nil {
			e.log.Warn().Err(cascadeErr).Str("account", id).Msg("remote cascade delete failed, deleting account anyway")
			cascadeErr = &Error{Op: "remote_delete", Kind: ErrRemoteDeleteFailed, Entity: schema.EntityTransaction, ID: id, Err: cascadeErr}
		}
		var accErr error
		if err := e.remote.DeleteAccount(ctx, id); err != nil {
			accErr = &Error{Op: "remote_delete", Kind: ErrRemoteDeleteFailed, Entity: kind, ID: id, Err: err}
		}
		return errors.Join(cascadeErr, accErr)
	case schema.EntityTransaction:
		if err := e.remote.DeleteTransaction(ctx, id); err != nil {
			return &Error{Op: "remote_delete", Kind: ErrRemoteDeleteFailed, Entity: kind, ID: id, Err: err}
		}
		return nil
	}
	return fmt.Errorf("unknown entity kind %q", kind)
}
