package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batabung/batabung/internal/ledger/schema"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
)

var _ ledgersync.Gateway = (*Gateway)(nil)

type recorded struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]recorded) {
	t.Helper()
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			header: r.Header.Clone(),
			body:   body,
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "anon", Token: "jwt-token"})
	require.NoError(t, err)
	return c, &reqs
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNoBaseURL)

	_, err = NewClient(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "https://example.com", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "k", c.token, "token falls back to api key")
	assert.Equal(t, DefaultTimeout, c.timeout)
}

func TestGateway_FetchAccounts(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":"a1","user_id":"u1","name":"BCA","alias":"Gaji","kind":"bank","is_active":true,
			 "source_tag":"com.bca.android","created_at":100,"updated_at":200},
			{"id":"a2","user_id":"u1","name":"DANA","alias":null,"kind":"e-wallet","is_active":false,
			 "source_tag":null,"created_at":100,"updated_at":100}
		]`)
	})
	g := NewGateway(c)

	accounts, err := g.FetchAccounts(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	a1 := accounts[0]
	assert.Equal(t, "u1", a1.OwnerID)
	assert.Equal(t, "Gaji", a1.Alias)
	assert.Equal(t, schema.KindBank, a1.Kind)
	assert.Equal(t, "com.bca.android", a1.SourceTag)
	assert.Equal(t, int64(200), a1.UpdatedAt)
	assert.Empty(t, a1.SyncStatus)

	assert.Empty(t, accounts[1].Alias)
	assert.False(t, accounts[1].Active)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/rest/v1/accounts", req.path)
	assert.Equal(t, "user_id=eq.u1", req.query)
	assert.Equal(t, "anon", req.header.Get("apikey"))
	assert.Equal(t, "Bearer jwt-token", req.header.Get("Authorization"))
}

func TestGateway_UpsertTransaction(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	g := NewGateway(c)

	tx := &schema.Transaction{
		ID: "t1", OwnerID: "u1", AccountID: "a1",
		OccurredAt: 50, Direction: schema.DirectionIn, Amount: 25000,
		Category: "salary", CreatedAt: 60, UpdatedAt: 70,
		SyncStatus: schema.StatusPending,
	}
	require.NoError(t, g.UpsertTransaction(context.Background(), tx))

	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/rest/v1/transactions", req.path)
	assert.Contains(t, req.header.Get("Prefer"), "resolution=merge-duplicates")

	var row map[string]any
	require.NoError(t, json.Unmarshal(req.body, &row))
	assert.Equal(t, "u1", row["user_id"])
	assert.Equal(t, "a1", row["account_id"])
	assert.Equal(t, float64(25000), row["amount"])
	assert.Nil(t, row["note"])
	assert.NotContains(t, row, "sync_status")
}

func TestGateway_Deletes(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	g := NewGateway(c)
	ctx := context.Background()

	require.NoError(t, g.DeleteTransactionsByAccount(ctx, "a1"))
	require.NoError(t, g.DeleteAccount(ctx, "a1"))
	require.NoError(t, g.DeleteTransaction(ctx, "t9"))

	got := make([]string, len(*reqs))
	for i, r := range *reqs {
		got[i] = r.method + " " + r.path + "?" + r.query
	}
	assert.Equal(t, []string{
		"DELETE /rest/v1/transactions?account_id=eq.a1",
		"DELETE /rest/v1/accounts?id=eq.a1",
		"DELETE /rest/v1/transactions?id=eq.t9",
	}, got)

	assert.Error(t, c.Delete(ctx, TableAccounts, "id", ""), "empty filter would delete everything")
}

func TestClient_StatusError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"row violates policy"}`, http.StatusForbidden)
	})

	err := NewGateway(c).UpsertAccount(context.Background(), &schema.Account{ID: "a1"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.False(t, se.Temporary())
	assert.Contains(t, err.Error(), "row violates policy")

	assert.True(t, (&StatusError{Code: 503}).Temporary())
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = NewGateway(c).FetchTransactions(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateway_Ping(t *testing.T) {
	healthy := true
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	g := NewGateway(c)

	require.NoError(t, g.Ping(context.Background()))
	assert.Equal(t, "/health", (*reqs)[0].path)

	healthy = false
	assert.Error(t, g.Ping(context.Background()))
}

func TestRowRoundTrip(t *testing.T) {
	acc := &schema.Account{
		ID: "a1", OwnerID: "u1", Name: "OVO", Kind: schema.KindEWallet,
		Active: true, CreatedAt: 1, UpdatedAt: 2, SyncStatus: schema.StatusSynced,
	}
	back := AccountToRow(acc).Account()
	back.SyncStatus = acc.SyncStatus
	assert.Equal(t, acc, back)
}
