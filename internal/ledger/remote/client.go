// Package remote talks to the hosted ledger backend.
//
// The backend exposes one REST resource per table under /rest/v1 with
// PostgREST-style equality filters:
//
//	GET    /rest/v1/accounts?user_id=eq.u1
//	POST   /rest/v1/accounts            (Prefer: resolution=merge-duplicates)
//	DELETE /rest/v1/transactions?account_id=eq.a1
//
// Client speaks that protocol for any table. Gateway maps it onto the
// account and transaction model used by the sync engine.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/logger"
)

// Table names on the backend.
const (
	TableAccounts     = "accounts"
	TableTransactions = "transactions"
)

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// ErrNoBaseURL is returned by NewClient when the backend URL is empty.
var ErrNoBaseURL = errors.New("remote: backend url is required")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Table  string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Table, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Table, e.Code, msg)
}

// Temporary reports whether retrying the request later may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. https://ledger.example.com.
	BaseURL string
	// APIKey is sent as the apikey header.
	APIKey string
	// Token is the bearer token identifying the user. Falls back to APIKey.
	Token string
	// Timeout per request. Default 20s.
	Timeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client performs table operations against the backend.
type Client struct {
	base    *url.URL
	apiKey  string
	token   string
	timeout time.Duration
	http    *http.Client
	log     zerolog.Logger
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: invalid backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", base.Scheme)
	}

	c := &Client{
		base:    base,
		apiKey:  cfg.APIKey,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		log:     logger.OrDefault(cfg.Logger, "remote"),
	}
	if c.token == "" {
		c.token = c.apiKey
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c, nil
}

// Select decodes every row of table where column equals value into out,
// which must be a pointer to a slice.
func (c *Client) Select(ctx context.Context, table, column, value string, out any) error {
	body, err := c.do(ctx, http.MethodGet, table, filter(column, value), nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

// Upsert inserts row into table or updates the existing row with the same
// primary key.
func (c *Client) Upsert(ctx context.Context, table string, row any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", table, err)
	}
	headers := map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "resolution=merge-duplicates,return=minimal",
	}
	_, err = c.do(ctx, http.MethodPost, table, nil, payload, headers)
	return err
}

// Delete removes every row of table where column equals value. Deleting
// nothing is not an error.
func (c *Client) Delete(ctx context.Context, table, column, value string) error {
	if value == "" {
		return fmt.Errorf("delete %s: empty %s filter", table, column)
	}
	_, err := c.do(ctx, http.MethodDelete, table, filter(column, value), nil, nil)
	return err
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath("health").String(), nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return &StatusError{Method: http.MethodGet, Table: "health", Code: resp.StatusCode}
	}
	return nil
}

func filter(column, value string) url.Values {
	return url.Values{column: {"eq." + value}}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, payload []byte, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.JoinPath("rest", "v1", table)
	u.RawQuery = query.Encode()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, table, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("table", table).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Method: method, Table: table, Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
