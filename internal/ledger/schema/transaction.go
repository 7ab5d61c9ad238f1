package schema

import (
	"fmt"

	"github.com/google/uuid"
)

// Transaction is a single money movement on an account.
// Amount is a whole number and always positive; Direction carries the sign.
type Transaction struct {
	ID        string `json:"id" validate:"required"`
	OwnerID   string `json:"owner_id" validate:"required"`
	AccountID string `json:"account_id" validate:"required"`

	OccurredAt int64     `json:"occurred_at" validate:"required"`
	Direction  Direction `json:"direction" validate:"required,oneof=in out"`
	Amount     int64     `json:"amount" validate:"gt=0"`
	Category   string    `json:"category"`
	Note       string    `json:"note,omitempty" validate:"max=500"`

	CreatedAt int64 `json:"created_at" validate:"required"`
	UpdatedAt int64 `json:"updated_at" validate:"required,gtefield=CreatedAt"`

	SyncStatus SyncStatus `json:"sync_status" validate:"required,oneof=pending synced conflict"`
}

// NewTransaction returns a pending transaction that occurred now.
func NewTransaction(ownerID, accountID string, dir Direction, amount int64) *Transaction {
	now := NowMillis()
	return &Transaction{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		AccountID:  accountID,
		OccurredAt: now,
		Direction:  dir,
		Amount:     amount,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: StatusPending,
	}
}

// Validate checks if the Transaction has valid field values.
// A non-positive amount fails with ErrInvalidAmount.
func (t *Transaction) Validate() error {
	return validateStruct(t)
}

// Signed returns the amount with the direction applied.
func (t *Transaction) Signed() int64 {
	if t.Direction == DirectionOut {
		return -t.Amount
	}
	return t.Amount
}

// Filename returns the canonical filename for this transaction: {id}.json
func (t *Transaction) Filename() string {
	return fmt.Sprintf("%s.json", t.ID)
}

// SetDefaults fills in fields a hand-written record file may omit.
func (t *Transaction) SetDefaults() {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.SyncStatus == "" {
		t.SyncStatus = StatusPending
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = NowMillis()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}
	if t.OccurredAt == 0 {
		t.OccurredAt = t.CreatedAt
	}
}

// Touch records a local edit: bumps UpdatedAt and marks the transaction pending.
func (t *Transaction) Touch() {
	now := NowMillis()
	if now <= t.UpdatedAt {
		now = t.UpdatedAt + 1
	}
	t.UpdatedAt = now
	t.SyncStatus = StatusPending
}

func (t *Transaction) RecordID() string   { return t.ID }
func (t *Transaction) Owner() string      { return t.OwnerID }
func (t *Transaction) Status() SyncStatus { return t.SyncStatus }
func (t *Transaction) Version() int64     { return t.UpdatedAt }
func (*Transaction) isRecord()            {}
