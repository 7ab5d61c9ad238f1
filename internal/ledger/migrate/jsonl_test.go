package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batabung/batabung/internal/ledger/db"
	"github.com/batabung/batabung/internal/ledger/schema"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func seedStore(t *testing.T, store *db.DB) (*schema.Account, *schema.Transaction) {
	t.Helper()
	ctx := context.Background()
	acc := schema.NewAccount("u1", "BCA", schema.KindBank)
	acc.SyncStatus = schema.StatusSynced
	require.NoError(t, store.InsertAccount(ctx, acc))
	tx := schema.NewTransaction("u1", acc.ID, schema.DirectionOut, 42_000)
	tx.Category = "food"
	tx.SyncStatus = schema.StatusSynced
	require.NoError(t, store.InsertTransaction(ctx, tx))
	return acc, tx
}

func TestExportOrdersAccountsFirst(t *testing.T) {
	store := openStore(t)
	seedStore(t, store)

	var buf bytes.Buffer
	result, err := Export(context.Background(), store, "u1", &buf)
	require.NoError(t, err)
	assert.Equal(t, &ExportResult{Accounts: 1, Transactions: 1}, result)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"kind":"account"`)
	assert.Contains(t, lines[1], `"kind":"transaction"`)
}

func TestImportIntoFreshStoreQueuesRecords(t *testing.T) {
	src := openStore(t)
	acc, tx := seedStore(t, src)
	path := filepath.Join(t.TempDir(), "out", "ledger.jsonl")
	_, err := ExportFile(context.Background(), src, "u1", path)
	require.NoError(t, err)

	dst := openStore(t)
	result, err := ImportFile(context.Background(), path, dst, ImportOptions{Owner: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Empty(t, result.Errors)

	got, err := dst.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Amount, got.Amount)
	assert.Equal(t, tx.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, schema.StatusPending, got.SyncStatus)

	gotAcc, err := dst.GetAccount(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusPending, gotAcc.SyncStatus)
}

func TestImportKeepsNewerLocalCopy(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	acc, _ := seedStore(t, store)

	var buf bytes.Buffer
	_, err := Export(ctx, store, "u1", &buf)
	require.NoError(t, err)

	acc.Alias = "edited"
	acc.Touch()
	require.NoError(t, store.UpdateAccount(ctx, acc))

	result, err := Import(ctx, &buf, store, ImportOptions{Owner: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Inserted+result.Updated)

	got, err := store.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Alias)
}

func TestImportReportsBadLines(t *testing.T) {
	store := openStore(t)
	acc := schema.NewAccount("someone-else", "OVO", schema.KindEWallet)

	var buf bytes.Buffer
	require.NoError(t, encodeLine(newEncoder(&buf), schema.EntityAccount, acc))
	buf.WriteString("not json\n")
	buf.WriteString(`{"kind":"budget","record":{}}` + "\n")
	buf.WriteString(`{"kind":"transaction","record":{"id":"t1","account_id":"missing","direction":"in","amount":5}}` + "\n")
	buf.WriteString(`{"kind":"transaction","record":{"id":"t2","account_id":"` + acc.ID + `","direction":"in","amount":0}}` + "\n")

	result, err := Import(context.Background(), &buf, store, ImportOptions{Owner: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "line 2")
	assert.Contains(t, result.Errors[1], "unknown kind")

	// The account was claimed by the importing owner.
	got, err := store.GetAccount(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	src := openStore(t)
	seedStore(t, src)
	var buf bytes.Buffer
	_, err := Export(context.Background(), src, "u1", &buf)
	require.NoError(t, err)

	dst := openStore(t)
	result, err := Import(context.Background(), &buf, dst, ImportOptions{Owner: "u1", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	accounts, err := dst.ListAccounts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestImportBackup(t *testing.T) {
	store := openStore(t)
	seedStore(t, store)
	backupDir := t.TempDir()

	result, err := Import(context.Background(), strings.NewReader(""), store, ImportOptions{Owner: "u1", BackupDir: backupDir})
	require.NoError(t, err)
	require.NotEmpty(t, result.BackupCreated)

	data, err := os.ReadFile(result.BackupCreated)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestImportRequiresOwner(t *testing.T) {
	_, err := Import(context.Background(), strings.NewReader(""), openStore(t), ImportOptions{})
	assert.ErrorIs(t, err, ledgersync.ErrUnauthenticated)
}

func newEncoder(buf *bytes.Buffer) *json.Encoder {
	return json.NewEncoder(buf)
}
