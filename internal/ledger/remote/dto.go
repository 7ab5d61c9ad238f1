package remote

import "github.com/batabung/batabung/internal/ledger/schema"

// AccountRow is the wire form of an account.
type AccountRow struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Name      string  `json:"name"`
	Alias     *string `json:"alias"`
	Kind      string  `json:"kind"`
	IsActive  bool    `json:"is_active"`
	SourceTag *string `json:"source_tag"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

// TransactionRow is the wire form of a transaction.
type TransactionRow struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	AccountID  string  `json:"account_id"`
	OccurredAt int64   `json:"occurred_at"`
	Direction  string  `json:"direction"`
	Amount     int64   `json:"amount"`
	Category   string  `json:"category"`
	Note       *string `json:"note"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
}

// AccountToRow converts a domain account. Sync status is local only and
// never sent.
func AccountToRow(a *schema.Account) AccountRow {
	return AccountRow{
		ID:        a.ID,
		UserID:    a.OwnerID,
		Name:      a.Name,
		Alias:     optional(a.Alias),
		Kind:      string(a.Kind),
		IsActive:  a.Active,
		SourceTag: optional(a.SourceTag),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// Account converts the row back. The returned account has no sync status.
func (r AccountRow) Account() *schema.Account {
	return &schema.Account{
		ID:        r.ID,
		OwnerID:   r.UserID,
		Name:      r.Name,
		Alias:     deref(r.Alias),
		Kind:      schema.AccountKind(r.Kind),
		Active:    r.IsActive,
		SourceTag: deref(r.SourceTag),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// TransactionToRow converts a domain transaction.
func TransactionToRow(t *schema.Transaction) TransactionRow {
	return TransactionRow{
		ID:         t.ID,
		UserID:     t.OwnerID,
		AccountID:  t.AccountID,
		OccurredAt: t.OccurredAt,
		Direction:  string(t.Direction),
		Amount:     t.Amount,
		Category:   t.Category,
		Note:       optional(t.Note),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// Transaction converts the row back. The returned transaction has no sync
// status.
func (r TransactionRow) Transaction() *schema.Transaction {
	return &schema.Transaction{
		ID:         r.ID,
		OwnerID:    r.UserID,
		AccountID:  r.AccountID,
		OccurredAt: r.OccurredAt,
		Direction:  schema.Direction(r.Direction),
		Amount:     r.Amount,
		Category:   r.Category,
		Note:       deref(r.Note),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
