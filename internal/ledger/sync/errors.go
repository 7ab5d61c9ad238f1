package sync

import (
	"errors"
	"fmt"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// Error kinds. Match them with errors.Is.
var (
	ErrUnauthenticated    = errors.New("no authenticated owner")
	ErrRemoteFetchFailed  = errors.New("remote fetch failed")
	ErrRemoteUpsertFailed = errors.New("remote upsert failed")
	ErrRemoteDeleteFailed = errors.New("remote delete failed")
	ErrLocalStoreFailed   = errors.New("local store failed")
	ErrSyncInProgress     = errors.New("sync already in progress")
)

// Error describes a failed sync step.
type Error struct {
	Op     string            // bootstrap, full_sync, push, pull, sync_one, delete_one
	Kind   error             // one of the Err* kinds above
	Entity schema.EntityKind // empty when not record-specific
	ID     string            // record id, if any
	Err    error             // underlying cause
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	switch {
	case e.Entity != "" && e.ID != "":
		msg += fmt.Sprintf(" (%s %s)", e.Entity, e.ID)
	case e.Entity != "":
		msg += fmt.Sprintf(" (%ss)", e.Entity)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func recordError(op string, kind error, rec schema.Record, err error) *Error {
	return &Error{Op: op, Kind: kind, Entity: schema.KindOf(rec), ID: rec.RecordID(), Err: err}
}
