package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Account is a bank account or e-wallet owned by a single user.
type Account struct {
	ID      string `json:"id" validate:"required"`
	OwnerID string `json:"owner_id" validate:"required"`

	Name  string `json:"name" validate:"required,max=100"`
	Alias string `json:"alias,omitempty" validate:"max=100"`

	Kind   AccountKind `json:"kind" validate:"required,oneof=bank e-wallet"`
	Active bool        `json:"active"`

	// SourceTag links the account to an external notification source,
	// e.g. a banking app package name.
	SourceTag string `json:"source_tag,omitempty"`

	CreatedAt int64 `json:"created_at" validate:"required"`
	UpdatedAt int64 `json:"updated_at" validate:"required,gtefield=CreatedAt"`

	SyncStatus SyncStatus `json:"sync_status" validate:"required,oneof=pending synced conflict"`
}

// NewAccount returns an active, pending account with a fresh id.
func NewAccount(ownerID, name string, kind AccountKind) *Account {
	now := NowMillis()
	return &Account{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		Kind:       kind,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: StatusPending,
	}
}

// Validate checks if the Account has valid field values.
func (a *Account) Validate() error {
	return validateStruct(a)
}

// DisplayName returns "name - alias" when an alias is set, else the name.
func (a *Account) DisplayName() string {
	if strings.TrimSpace(a.Alias) == "" {
		return a.Name
	}
	return a.Name + " - " + a.Alias
}

// Filename returns the canonical filename for this account: {id}.json
func (a *Account) Filename() string {
	return fmt.Sprintf("%s.json", a.ID)
}

// SetDefaults fills in fields a hand-written record file may omit.
func (a *Account) SetDefaults() {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SyncStatus == "" {
		a.SyncStatus = StatusPending
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = NowMillis()
	}
	if a.UpdatedAt == 0 {
		a.UpdatedAt = a.CreatedAt
	}
}

// Touch records a local edit: bumps UpdatedAt and marks the account pending.
func (a *Account) Touch() {
	now := NowMillis()
	if now <= a.UpdatedAt {
		now = a.UpdatedAt + 1
	}
	a.UpdatedAt = now
	a.SyncStatus = StatusPending
}

func (a *Account) RecordID() string   { return a.ID }
func (a *Account) Owner() string      { return a.OwnerID }
func (a *Account) Status() SyncStatus { return a.SyncStatus }
func (a *Account) Version() int64     { return a.UpdatedAt }
func (*Account) isRecord()            {}
