// Package ledger submits transactions to the external financial-records
// service and re-verifies writes by idempotency key.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"finflow/core/logger"
)

// Transaction is the provider-shaped wire record. Foreign fields are
// attached only when the account currency differs from the settlement
// currency; same-currency submissions omit them entirely (omission, not
// zero-filling, matters downstream).
type Transaction struct {
	ID                  string   `json:"id,omitempty"`
	Type                string   `json:"type"`
	Date                string   `json:"date"`
	Amount              string   `json:"amount"`
	CurrencyCode        string   `json:"currency_code"`
	ForeignAmount       string   `json:"foreign_amount,omitempty"`
	ForeignCurrencyCode string   `json:"foreign_currency_code,omitempty"`
	SourceName          string   `json:"source_name,omitempty"`
	DestinationName     string   `json:"destination_name,omitempty"`
	CategoryName        string   `json:"category_name,omitempty"`
	Notes               string   `json:"notes,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	ExternalID          string   `json:"external_id"`
}

// Client is the low-level HTTP client for the transaction API.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *Signer
}

// NewClient builds a ledger client.
func NewClient(baseURL string, httpClient *http.Client, signer *Signer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient, signer: signer}
}

// Configured reports whether the client can write.
func (c *Client) Configured() bool {
	return c.signer.Configured()
}

// Create posts one transaction.
func (c *Client) Create(ctx context.Context, username string, tx Transaction) (Transaction, error) {
	var created Transaction
	err := c.do(ctx, http.MethodPost, "/transactions", username, tx, &created)
	return created, err
}

// Get fetches one transaction by its service-side id.
func (c *Client) Get(ctx context.Context, username, id string) (Transaction, error) {
	var tx Transaction
	err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), username, nil, &tx)
	return tx, err
}

// Update replaces one transaction.
func (c *Client) Update(ctx context.Context, username, id string, tx Transaction) error {
	return c.do(ctx, http.MethodPut, "/transactions/"+url.PathEscape(id), username, tx, nil)
}

// Delete removes one transaction.
func (c *Client) Delete(ctx context.Context, username, id string) error {
	return c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), username, nil, nil)
}

// FindByExternalID re-queries a transaction by its idempotency key. A nil
// result with nil error means the write is not visible (yet).
func (c *Client) FindByExternalID(ctx context.Context, username, externalID string) (*Transaction, error) {
	var found []Transaction
	endpoint := "/transactions?" + url.Values{"external_id": {externalID}}.Encode()
	if err := c.do(ctx, http.MethodGet, endpoint, username, nil, &found); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// Recent lists the latest transactions for a user.
func (c *Client) Recent(ctx context.Context, username string, limit int) ([]Transaction, error) {
	var list []Transaction
	query := url.Values{"user_name": {username}, "limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, http.MethodGet, "/transactions?"+query.Encode(), username, nil, &list)
	return list, err
}

func (c *Client) do(ctx context.Context, method, endpoint, username string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ledger: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.signer.Apply(req, username); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, "ledger", "request.failed",
			slog.String("url", endpoint),
			slog.String("err", err.Error()),
		)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn(ctx, "ledger", "request.http_error",
			slog.String("url", endpoint),
			slog.Int("http_code", resp.StatusCode),
		)
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ledger: decode response: %w", err)
	}
	return nil
}
