// Package seed generates synthetic ledgers for demos and concurrency checks.
//
// Generation is deterministic for a given Options.Seed, ids included, so a
// failing stress run can be reproduced.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/batabung/batabung/internal/catalog"
	"github.com/batabung/batabung/internal/ledger/schema"
)

// Options controls what Generate produces.
type Options struct {
	Owner string
	// Accounts is the number of accounts, drawn from the catalog in order.
	Accounts int
	// TransactionsPerAccount is the number of transactions per account.
	TransactionsPerAccount int
	// Days spreads occurredAt over the last N days.
	Days int
	// SyncedPct is the fraction of records already marked synced, the
	// rest are pending.
	SyncedPct float64
	Seed      int64
	// Now anchors the generated timestamps. Default time.Now.
	Now time.Time
	// Catalog supplies account names. Default catalog.Default().
	Catalog *catalog.Catalog
}

// DefaultOptions returns a small demo ledger for owner.
func DefaultOptions(owner string) Options {
	return Options{
		Owner:                  owner,
		Accounts:               4,
		TransactionsPerAccount: 25,
		Days:                   60,
		Seed:                   42,
	}
}

// Ledger is a generated set of records.
type Ledger struct {
	Accounts     []*schema.Account
	Transactions []*schema.Transaction
}

// Balance returns the expected balance of one generated account.
func (l *Ledger) Balance(accountID string) int64 {
	var total int64
	for _, tx := range l.Transactions {
		if tx.AccountID == accountID {
			total += tx.Signed()
		}
	}
	return total
}

var categories = map[schema.Direction][]string{
	schema.DirectionIn:  {"salary", "transfer", "refund", "topup"},
	schema.DirectionOut: {"food", "transport", "shopping", "bills", "transfer", "entertainment"},
}

// Generate builds a ledger from opts.
func Generate(opts Options) (*Ledger, error) {
	if opts.Owner == "" {
		return nil, errors.New("seed: owner is required")
	}
	if opts.Accounts <= 0 {
		return nil, errors.New("seed: at least one account is required")
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	if len(cat.Institutions) == 0 {
		return nil, errors.New("seed: catalog is empty")
	}

	// Use deterministic random for reproducibility
	rng := rand.New(rand.NewSource(opts.Seed))
	newID := func() string {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return uuid.NewString()
		}
		return id.String()
	}
	status := func() schema.SyncStatus {
		if rng.Float64() < opts.SyncedPct {
			return schema.StatusSynced
		}
		return schema.StatusPending
	}

	end := opts.Now.UnixMilli()
	start := opts.Now.Add(-time.Duration(opts.Days) * 24 * time.Hour).UnixMilli()

	l := &Ledger{
		Accounts:     make([]*schema.Account, 0, opts.Accounts),
		Transactions: make([]*schema.Transaction, 0, opts.Accounts*opts.TransactionsPerAccount),
	}
	for i := 0; i < opts.Accounts; i++ {
		inst := cat.Institutions[i%len(cat.Institutions)]
		acc := inst.NewAccount(opts.Owner)
		acc.ID = newID()
		if i >= len(cat.Institutions) {
			acc.Alias = fmt.Sprintf("#%d", i/len(cat.Institutions)+1)
		}
		acc.CreatedAt = start
		acc.UpdatedAt = start
		acc.SyncStatus = status()
		l.Accounts = append(l.Accounts, acc)

		// The first transaction is an opening deposit so most balances
		// stay positive.
		for j := 0; j < opts.TransactionsPerAccount; j++ {
			dir := schema.DirectionOut
			amount := int64(rng.Intn(500)+1) * 1_000
			if j == 0 || rng.Intn(4) == 0 {
				dir = schema.DirectionIn
				amount = int64(rng.Intn(5_000)+500) * 1_000
			}
			occurred := start + rng.Int63n(end-start+1)
			tx := &schema.Transaction{
				ID:         newID(),
				OwnerID:    opts.Owner,
				AccountID:  acc.ID,
				OccurredAt: occurred,
				Direction:  dir,
				Amount:     amount,
				Category:   categories[dir][rng.Intn(len(categories[dir]))],
				CreatedAt:  occurred,
				UpdatedAt:  occurred,
				SyncStatus: status(),
			}
			l.Transactions = append(l.Transactions, tx)
		}
	}
	sort.SliceStable(l.Transactions, func(i, j int) bool {
		return l.Transactions[i].OccurredAt < l.Transactions[j].OccurredAt
	})
	return l, nil
}

// Target is the store Populate writes to.
type Target interface {
	InsertAccount(ctx context.Context, acc *schema.Account) error
	InsertTransaction(ctx context.Context, tx *schema.Transaction) error
}

// Populate writes a generated ledger, accounts first.
func Populate(ctx context.Context, store Target, l *Ledger) error {
	for _, acc := range l.Accounts {
		if err := store.InsertAccount(ctx, acc); err != nil {
			return fmt.Errorf("failed to insert account %s: %w", acc.ID, err)
		}
	}
	for _, tx := range l.Transactions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := store.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}

// Reader is what Stress queries.
type Reader interface {
	ListAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}

// LatencyStats captures performance metrics from a stress run.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
}

// Stress runs readers concurrent goroutines that list the owner's accounts
// and read each balance until ctx is done, e.g. while a sync runs against
// the same store. Every read must succeed and every listed account must
// carry an id.
func Stress(ctx context.Context, store Reader, owner string, readers int) (*LatencyStats, error) {
	if readers <= 0 {
		readers = 1
	}

	var (
		wg   gosync.WaitGroup
		mu   gosync.Mutex
		all  []time.Duration
		errs []error
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			var durations []time.Duration
			defer func() {
				mu.Lock()
				all = append(all, durations...)
				mu.Unlock()
			}()

			for ctx.Err() == nil {
				began := time.Now()
				accounts, err := store.ListAccounts(ctx, owner)
				if err == nil {
					for _, acc := range accounts {
						if acc.ID == "" {
							err = fmt.Errorf("reader %d found account with empty id", reader)
							break
						}
						if _, err = store.Balance(ctx, acc.ID); err != nil {
							break
						}
					}
				}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					return
				}
				durations = append(durations, time.Since(began))
			}
		}(i)
	}
	wg.Wait()

	stats := computeLatencyStats(all)
	stats.Errors = len(errs)
	return stats, errors.Join(errs...)
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
	}
}

// Print formats latency statistics.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
