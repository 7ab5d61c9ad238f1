package remote

import (
	"context"

	"github.com/batabung/batabung/internal/ledger/schema"
)

// Gateway adapts a Client to the account/transaction operations the sync
// engine needs.
type Gateway struct {
	client *Client
}

// NewGateway wraps client.
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

// Ping checks backend reachability. The scheduler uses it as its
// connectivity gate.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.client.Ping(ctx)
}

func (g *Gateway) FetchAccounts(ctx context.Context, ownerID string) ([]*schema.Account, error) {
	var rows []AccountRow
	if err := g.client.Select(ctx, TableAccounts, "user_id", ownerID, &rows); err != nil {
		return nil, err
	}
	out := make([]*schema.Account, len(rows))
	for i, r := range rows {
		out[i] = r.Account()
	}
	return out, nil
}

func (g *Gateway) FetchTransactions(ctx context.Context, ownerID string) ([]*schema.Transaction, error) {
	var rows []TransactionRow
	if err := g.client.Select(ctx, TableTransactions, "user_id", ownerID, &rows); err != nil {
		return nil, err
	}
	out := make([]*schema.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.Transaction()
	}
	return out, nil
}

func (g *Gateway) UpsertAccount(ctx context.Context, acc *schema.Account) error {
	return g.client.Upsert(ctx, TableAccounts, AccountToRow(acc))
}

func (g *Gateway) UpsertTransaction(ctx context.Context, tx *schema.Transaction) error {
	return g.client.Upsert(ctx, TableTransactions, TransactionToRow(tx))
}

func (g *Gateway) DeleteAccount(ctx context.Context, id string) error {
	return g.client.Delete(ctx, TableAccounts, "id", id)
}

func (g *Gateway) DeleteTransaction(ctx context.Context, id string) error {
	return g.client.Delete(ctx, TableTransactions, "id", id)
}

// DeleteTransactionsByAccount removes every transaction of an account.
// Call it before DeleteAccount; the backend rejects deleting an account
// that still has transactions.
func (g *Gateway) DeleteTransactionsByAccount(ctx context.Context, accountID string) error {
	return g.client.Delete(ctx, TableTransactions, "account_id", accountID)
}
