package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validTransaction() Transaction {
	return Transaction{
		ID:         "t1",
		OwnerID:    "u1",
		AccountID:  "a1",
		OccurredAt: 100,
		Direction:  DirectionOut,
		Amount:     25000,
		Category:   "food",
		CreatedAt:  100,
		UpdatedAt:  100,
		SyncStatus: StatusPending,
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr string
		amount  bool
	}{
		{name: "valid transaction", mutate: func(tx *Transaction) {}},
		{name: "empty category allowed", mutate: func(tx *Transaction) { tx.Category = "" }},
		{name: "zero amount", mutate: func(tx *Transaction) { tx.Amount = 0 }, amount: true},
		{name: "negative amount", mutate: func(tx *Transaction) { tx.Amount = -5 }, amount: true},
		{name: "missing account", mutate: func(tx *Transaction) { tx.AccountID = "" }, wantErr: "account_id is required"},
		{name: "bad direction", mutate: func(tx *Transaction) { tx.Direction = "sideways" }, wantErr: "direction must be one of"},
		{name: "missing occurred_at", mutate: func(tx *Transaction) { tx.OccurredAt = 0 }, wantErr: "occurred_at is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			err := tx.Validate()
			switch {
			case tt.amount:
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("Validate() error = %v, want ErrInvalidAmount", err)
				}
			case tt.wantErr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			}
		})
	}
}

func TestTransaction_Signed(t *testing.T) {
	tx := validTransaction()
	if tx.Signed() != -25000 {
		t.Errorf("Signed() = %d, want -25000", tx.Signed())
	}
	tx.Direction = DirectionIn
	if tx.Signed() != 25000 {
		t.Errorf("Signed() = %d, want 25000", tx.Signed())
	}
}

func TestWriteReadTransactionFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "transactions")
	tx := validTransaction()

	if err := WriteTransactionFile(dir, &tx); err != nil {
		t.Fatalf("WriteTransactionFile() error = %v", err)
	}

	got, err := ReadTransactionFile(filepath.Join(dir, "t1.json"))
	if err != nil {
		t.Fatalf("ReadTransactionFile() error = %v", err)
	}
	if *got != tx {
		t.Errorf("ReadTransactionFile() = %+v, want %+v", got, tx)
	}
}

func TestWriteTransactionFile_RejectsInvalidAmount(t *testing.T) {
	dir := t.TempDir()
	tx := validTransaction()
	tx.Amount = 0

	err := WriteTransactionFile(dir, &tx)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("WriteTransactionFile() error = %v, want ErrInvalidAmount", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "t1.json")); !os.IsNotExist(err) {
		t.Error("invalid transaction should not be written")
	}
}

func TestReadAllTransactionFiles(t *testing.T) {
	dir := t.TempDir()

	tx := validTransaction()
	if err := WriteTransactionFile(dir, &tx); err != nil {
		t.Fatal(err)
	}
	// Missing optional fields are defaulted.
	minimal := `{"owner_id":"u1","account_id":"a1","direction":"in","amount":10}`
	if err := os.WriteFile(filepath.Join(dir, "minimal.json"), []byte(minimal), 0644); err != nil {
		t.Fatal(err)
	}
	bad := `{"owner_id":"u1","account_id":"a1","direction":"in","amount":0}`
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	txs, err := ReadAllTransactionFiles(dir)
	if err != nil {
		t.Fatalf("ReadAllTransactionFiles() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("ReadAllTransactionFiles() returned %d records, want 2", len(txs))
	}
	for _, got := range txs {
		if got.SyncStatus != StatusPending {
			t.Errorf("record %s status = %v, want pending", got.ID, got.SyncStatus)
		}
	}
}

func TestReadAllAccountFiles_MissingDir(t *testing.T) {
	accounts, err := ReadAllAccountFiles(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("ReadAllAccountFiles() error = %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("ReadAllAccountFiles() = %d records, want 0", len(accounts))
	}
}
