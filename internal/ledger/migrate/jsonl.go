// Package migrate moves an owner's ledger in and out of JSONL files.
//
// Each line holds one record:
//
//	{"kind":"account","record":{...}}
//	{"kind":"transaction","record":{...}}
//
// Export writes accounts before transactions so an import never sees a
// transaction before its account.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
)

// maxLineSize bounds a single JSONL line.
const maxLineSize = 1 << 20

// Line is one JSONL entry.
type Line struct {
	Kind   schema.EntityKind `json:"kind"`
	Record json.RawMessage   `json:"record"`
}

// Source is what Export reads from.
type Source interface {
	ListAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error)
	ListTransactions(ctx context.Context, ownerID string) ([]*schema.Transaction, error)
}

// Target is what Import writes to.
type Target interface {
	GetAccount(ctx context.Context, id string) (*schema.Account, error)
	InsertAccount(ctx context.Context, acc *schema.Account) error
	GetTransaction(ctx context.Context, id string) (*schema.Transaction, error)
	InsertTransaction(ctx context.Context, tx *schema.Transaction) error
}

// ExportResult contains statistics about an export
type ExportResult struct {
	Accounts     int
	Transactions int
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	// Owner claims every imported record. Required.
	Owner string
	// DryRun parses and decides without writing.
	DryRun bool
	// BackupDir, when set, receives an export of the owner's ledger taken
	// before anything is written.
	BackupDir string
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Inserted      int
	Updated       int
	Skipped       int
	BackupCreated string
	Errors        []string
}

// Export writes every record of ownerID to w.
func Export(ctx context.Context, src Source, ownerID string, w io.Writer) (*ExportResult, error) {
	accounts, err := src.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	txs, err := src.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	result := &ExportResult{}
	for _, acc := range accounts {
		if err := encodeLine(enc, schema.EntityAccount, acc); err != nil {
			return nil, err
		}
		result.Accounts++
	}
	for _, tx := range txs {
		if err := encodeLine(enc, schema.EntityTransaction, tx); err != nil {
			return nil, err
		}
		result.Transactions++
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	return result, nil
}

func encodeLine(enc *json.Encoder, kind schema.EntityKind, rec any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	if err := enc.Encode(Line{Kind: kind, Record: raw}); err != nil {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
	return nil
}

// ExportFile writes the owner's ledger to path atomically via a temp file.
func ExportFile(ctx context.Context, src Source, ownerID, path string) (*ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	result, err := Export(ctx, src, ownerID, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// Read parses JSONL from r. Lines that fail to parse are reported in the
// returned error slice with their line number; they do not stop the read.
func Read(r io.Reader) ([]schema.Record, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		records []schema.Record
		bad     []string
		lineNum int
	)
	for scanner.Scan() {
		lineNum++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		rec, err := parseLine(data)
		if err != nil {
			bad = append(bad, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read JSONL at line %d: %w", lineNum+1, err)
	}
	return records, bad, nil
}

func parseLine(data []byte) (schema.Record, error) {
	var line Line
	if err := json.Unmarshal(data, &line); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	switch line.Kind {
	case schema.EntityAccount:
		var acc schema.Account
		if err := json.Unmarshal(line.Record, &acc); err != nil {
			return nil, fmt.Errorf("invalid account: %w", err)
		}
		acc.SetDefaults()
		return &acc, nil
	case schema.EntityTransaction:
		var tx schema.Transaction
		if err := json.Unmarshal(line.Record, &tx); err != nil {
			return nil, fmt.Errorf("invalid transaction: %w", err)
		}
		tx.SetDefaults()
		return &tx, nil
	}
	return nil, fmt.Errorf("unknown kind %q", line.Kind)
}

// Import loads JSONL records from r into the local store.
//
// Records are claimed by opts.Owner and stored pending so the next sync
// pushes them. A record already present locally is only replaced when the
// imported copy is strictly newer. A transaction whose account is neither
// in the store nor earlier in the input is skipped.
func Import(ctx context.Context, r io.Reader, dst Target, opts ImportOptions) (*ImportResult, error) {
	if opts.Owner == "" {
		return nil, ledgersync.ErrUnauthenticated
	}

	records, bad, err := Read(r)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Errors: bad}

	if opts.BackupDir != "" && !opts.DryRun {
		src, ok := dst.(Source)
		if !ok {
			return nil, errors.New("backup requested but target cannot be listed")
		}
		backupPath := filepath.Join(opts.BackupDir, "ledger.backup."+time.Now().Format("20060102-150405")+".jsonl")
		if _, err := ExportFile(ctx, src, opts.Owner, backupPath); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	// Accounts written during a dry run still count as present.
	staged := make(map[string]bool)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var decision ledgersync.Decision
		switch rec := rec.(type) {
		case *schema.Account:
			decision, err = importAccount(ctx, dst, rec, opts)
			if err == nil && decision != ledgersync.Keep {
				staged[rec.ID] = true
			}
		case *schema.Transaction:
			if !staged[rec.AccountID] {
				if _, gerr := dst.GetAccount(ctx, rec.AccountID); gerr != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("transaction %s: account %s not found", rec.ID, rec.AccountID))
					result.Skipped++
					continue
				}
			}
			decision, err = importTransaction(ctx, dst, rec, opts)
		}
		if err != nil {
			if errors.Is(err, errInvalid) {
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", schema.KindOf(rec), rec.RecordID(), err))
				result.Skipped++
				continue
			}
			return result, err
		}
		switch decision {
		case ledgersync.Insert:
			result.Inserted++
		case ledgersync.Overwrite:
			result.Updated++
		case ledgersync.Keep:
			result.Skipped++
		}
	}
	return result, nil
}

var errInvalid = errors.New("invalid record")

func importAccount(ctx context.Context, dst Target, acc *schema.Account, opts ImportOptions) (ledgersync.Decision, error) {
	acc.OwnerID = opts.Owner
	acc.SyncStatus = schema.StatusPending
	if err := acc.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalid, err)
	}

	var local schema.Record
	existing, err := dst.GetAccount(ctx, acc.ID)
	switch {
	case err == nil:
		if existing.OwnerID != opts.Owner {
			return 0, fmt.Errorf("%w: id taken by another owner", errInvalid)
		}
		local = existing
	case !errors.Is(err, db.ErrNotFound):
		return 0, fmt.Errorf("failed to look up account %s: %w", acc.ID, err)
	}

	decision := ledgersync.Decide(local, acc)
	if decision == ledgersync.Keep || opts.DryRun {
		return decision, nil
	}
	if err := dst.InsertAccount(ctx, acc); err != nil {
		return 0, fmt.Errorf("failed to import account %s: %w", acc.ID, err)
	}
	return decision, nil
}

func importTransaction(ctx context.Context, dst Target, tx *schema.Transaction, opts ImportOptions) (ledgersync.Decision, error) {
	tx.OwnerID = opts.Owner
	tx.SyncStatus = schema.StatusPending
	if err := tx.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalid, err)
	}

	var local schema.Record
	existing, err := dst.GetTransaction(ctx, tx.ID)
	switch {
	case err == nil:
		if existing.OwnerID != opts.Owner {
			return 0, fmt.Errorf("%w: id taken by another owner", errInvalid)
		}
		local = existing
	case !errors.Is(err, db.ErrNotFound):
		return 0, fmt.Errorf("failed to look up transaction %s: %w", tx.ID, err)
	}

	decision := ledgersync.Decide(local, tx)
	if decision == ledgersync.Keep || opts.DryRun {
		return decision, nil
	}
	if err := dst.InsertTransaction(ctx, tx); err != nil {
		return 0, fmt.Errorf("failed to import transaction %s: %w", tx.ID, err)
	}
	return decision, nil
}

// ImportFile opens path and imports it.
func ImportFile(ctx context.Context, path string, dst Target, opts ImportOptions) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()
	return Import(ctx, f, dst, opts)
}
