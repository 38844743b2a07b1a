package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finflow/internal/flow"
)

func catalogServer(t *testing.T, hits *atomic.Int32, payloads map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		payload, ok := payloads[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(srv.URL, "test-key", srv.Client(), TTLs{
		Accounts:   time.Minute,
		Categories: time.Minute,
		Rates:      time.Minute,
		Balances:   time.Minute,
	}, nil)
}

func TestAccountsUsageOrdering(t *testing.T) {
	raw := []map[string]any{
		{"id": "A", "name": "A", "currency": "EUR", "usage_count": 0},
		{"id": "B", "name": "B", "currency": "EUR", "usage_count": 9},
		{"id": "C", "name": "C", "currency": "EUR", "usage_count": 3},
		{"id": "D", "name": "D", "currency": "EUR", "usage_count": 0},
	}
	srv := catalogServer(t, nil, map[string]any{"/get_accounts_usage": raw})
	c := newTestClient(t, srv)

	accounts, err := c.Accounts(context.Background(), "alice")
	require.NoError(t, err)

	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	// Used entries first by usage descending; unused keep fetch order.
	require.Equal(t, []string{"B", "C", "A", "D"}, ids)
}

func TestAccountsRequestsCoalesceWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := catalogServer(t, &hits, map[string]any{
		"/get_accounts_usage": []map[string]any{{"id": "A", "name": "A", "currency": "EUR"}},
	})
	c := newTestClient(t, srv)

	for i := 0; i < 4; i++ {
		_, err := c.Accounts(context.Background(), "alice")
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), hits.Load())
}

func TestCategoriesScopedByKind(t *testing.T) {
	var hits atomic.Int32
	srv := catalogServer(t, &hits, map[string]any{
		"/get_categories_usage": []map[string]any{{"id": 1, "name": "Groceries", "usage_count": 5}},
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Categories(ctx, "alice", flow.KindWithdrawal)
	require.NoError(t, err)
	_, err = c.Categories(ctx, "alice", flow.KindDeposit)
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load(), "withdrawal and deposit catalogs are cached separately")

	_, err = c.Categories(ctx, "alice", flow.KindWithdrawal)
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestConvertSharesOneCachedRate(t *testing.T) {
	var hits atomic.Int32
	srv := catalogServer(t, &hits, map[string]any{
		"/exchange_rate": map[string]any{"rate": "0.921", "converted": "0.92"},
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	converted, rate, err := c.Convert(ctx, "USD", "EUR", "20")
	require.NoError(t, err)
	require.Equal(t, "0.921", rate)
	require.Equal(t, "18.42", converted)

	// A different amount reuses the cached unit rate.
	converted, _, err = c.Convert(ctx, "USD", "EUR", "100")
	require.NoError(t, err)
	require.Equal(t, "92.1", converted)
	require.Equal(t, int32(1), hits.Load())
}

func TestConvertRejectsBadAmount(t *testing.T) {
	srv := catalogServer(t, nil, map[string]any{
		"/exchange_rate": map[string]any{"rate": "0.9"},
	})
	c := newTestClient(t, srv)

	_, _, err := c.Convert(context.Background(), "USD", "EUR", "not-a-number")
	require.Error(t, err)
}

func TestInvalidateBalanceForcesRefetch(t *testing.T) {
	var hits atomic.Int32
	srv := catalogServer(t, &hits, map[string]any{
		"/balance": map[string]any{"balance": "120.00 EUR"},
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Balance(ctx, "alice")
	require.NoError(t, err)
	_, err = c.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	c.InvalidateBalance(ctx, "alice")
	_, err = c.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestUpstreamErrorIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "A", "name": "A", "currency": "EUR"}})
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Accounts(ctx, "alice")
	require.Error(t, err)

	fail.Store(false)
	accounts, err := c.Accounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}
