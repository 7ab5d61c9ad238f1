package schema

import (
	"time"
)

// SyncStatus marks whether a record still has local changes to push.
// It is a queue marker only; conflict resolution uses UpdatedAt.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
	// StatusConflict is kept for forward compatibility. Reconciliation
	// never assigns it.
	StatusConflict SyncStatus = "conflict"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSynced, StatusConflict:
		return true
	}
	return false
}

// AccountKind distinguishes bank accounts from e-wallets.
type AccountKind string

const (
	KindBank    AccountKind = "bank"
	KindEWallet AccountKind = "e-wallet"
)

// Valid reports whether k is a known account kind.
func (k AccountKind) Valid() bool {
	return k == KindBank || k == KindEWallet
}

// Direction is the sign of a transaction: money in or money out.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Record is implemented by *Account and *Transaction only.
// Consumers switch on the concrete type:
//
//	switch r := rec.(type) {
//	case *schema.Account:
//	case *schema.Transaction:
//	}
type Record interface {
	RecordID() string
	Owner() string
	Status() SyncStatus
	Version() int64
	isRecord()
}

// NowMillis returns the current time as Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FromMillis converts Unix milliseconds to a time.Time in local time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
