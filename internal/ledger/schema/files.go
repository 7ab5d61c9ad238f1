package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// validatable is satisfied by *Account and *Transaction.
type validatable interface {
	Validate() error
	SetDefaults()
	Filename() string
}

func readRecordFile(path string, rec validatable) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read record file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("failed to parse record file %s: %w", path, err)
	}

	rec.SetDefaults()
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record file %s: %w", path, err)
	}
	return nil
}

func writeRecordFile(dir string, rec validatable) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid record: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	path := filepath.Join(dir, rec.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write record file %s: %w", path, err)
	}
	return nil
}

// jsonFiles lists the *.json files directly under dir.
// A missing directory yields no files.
func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// ReadAccountFile reads, defaults and validates an account file.
func ReadAccountFile(path string) (*Account, error) {
	var acc Account
	if err := readRecordFile(path, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// WriteAccountFile writes acc to dir/{id}.json.
func WriteAccountFile(dir string, acc *Account) error {
	return writeRecordFile(dir, acc)
}

// ReadTransactionFile reads, defaults and validates a transaction file.
// A non-positive amount fails with ErrInvalidAmount.
func ReadTransactionFile(path string) (*Transaction, error) {
	var tx Transaction
	if err := readRecordFile(path, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// WriteTransactionFile writes tx to dir/{id}.json.
func WriteTransactionFile(dir string, tx *Transaction) error {
	return writeRecordFile(dir, tx)
}

// ReadAllAccountFiles reads every account file in dir.
// Invalid files are skipped with a warning to stderr.
func ReadAllAccountFiles(dir string) ([]*Account, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}

	accounts := []*Account{}
	for _, path := range paths {
		acc, err := ReadAccountFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid account file %s: %v\n", filepath.Base(path), err)
			continue
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// ReadAllTransactionFiles reads every transaction file in dir.
// Invalid files are skipped with a warning to stderr.
func ReadAllTransactionFiles(dir string) ([]*Transaction, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}

	txs := []*Transaction{}
	for _, path := range paths {
		tx, err := ReadTransactionFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid transaction file %s: %v\n", filepath.Base(path), err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
