package sync

import (
	"fmt"
	"time"
)

// EntityCounts tallies what one run did to one entity kind.
type EntityCounts struct {
	Pushed     int `json:"pushed"`
	PushFailed int `json:"push_failed"`
	Deleted    int `json:"deleted"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Orphaned   int `json:"orphaned"`
}

// Report summarizes a Bootstrap or FullSync run.
type Report struct {
	Op           string        `json:"op"`
	OwnerID      string        `json:"owner_id"`
	Accounts     EntityCounts  `json:"accounts"`
	Transactions EntityCounts  `json:"transactions"`
	// DeleteFailed counts tombstones whose remote delete failed again.
	DeleteFailed int           `json:"delete_failed"`
	Duration     time.Duration `json:"duration"`
}

// PushFailures returns the number of records left pending by this run.
func (r *Report) PushFailures() int {
	return r.Accounts.PushFailed + r.Transactions.PushFailed + r.DeleteFailed
}

func (r *Report) String() string {
	return fmt.Sprintf("%s: accounts pushed=%d failed=%d inserted=%d updated=%d skipped=%d; "+
		"transactions pushed=%d failed=%d inserted=%d updated=%d skipped=%d orphaned=%d; "+
		"deletes=%d failed=%d (%s)",
		r.Op,
		r.Accounts.Pushed, r.Accounts.PushFailed, r.Accounts.Inserted, r.Accounts.Updated, r.Accounts.Skipped,
		r.Transactions.Pushed, r.Transactions.PushFailed, r.Transactions.Inserted, r.Transactions.Updated,
		r.Transactions.Skipped, r.Transactions.Orphaned,
		r.Accounts.Deleted+r.Transactions.Deleted, r.DeleteFailed,
		r.Duration.Round(time.Millisecond))
}
