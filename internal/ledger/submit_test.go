package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finflow/internal/flow"
)

// fakeLedger is a minimal in-memory stand-in for the transactions API.
type fakeLedger struct {
	mu sync.Mutex

	created    []Transaction
	nextID     int
	failCreate func(tx Transaction) int // non-zero status fails the create
	// hideUntil makes FindByExternalID return empty for the first N queries.
	hideUntil   int
	findQueries int
	recentCalls int
	recent      []Transaction
}

func (f *fakeLedger) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var tx Transaction
			if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if f.failCreate != nil {
				if code := f.failCreate(tx); code != 0 {
					w.WriteHeader(code)
					return
				}
			}
			f.nextID++
			tx.ID = strconv.Itoa(f.nextID)
			f.created = append(f.created, tx)
			_ = json.NewEncoder(w).Encode(tx)
		case http.MethodGet:
			if ext := r.URL.Query().Get("external_id"); ext != "" {
				f.findQueries++
				if f.findQueries <= f.hideUntil {
					_ = json.NewEncoder(w).Encode([]Transaction{})
					return
				}
				var found []Transaction
				for _, tx := range f.created {
					if tx.ExternalID == ext {
						found = append(found, tx)
					}
				}
				_ = json.NewEncoder(w).Encode(found)
				return
			}
			f.recentCalls++
			_ = json.NewEncoder(w).Encode(f.recent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/transactions/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeLedger) createdPayloads() []Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transaction(nil), f.created...)
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRefresher) InvalidateBalance(_ context.Context, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, username)
}

func newTestService(t *testing.T, f *fakeLedger, opts ServiceOptions) *Service {
	t.Helper()
	srv := f.server(t)
	client := NewClient(srv.URL, srv.Client(), NewSigner("test-key", "test-secret"))
	if opts.SettlementCurrency == "" {
		opts.SettlementCurrency = "EUR"
	}
	svc := NewService(client, opts)
	svc.sleep = func(time.Duration) {}
	return svc
}

func withdrawalDraft() flow.TransactionDraft {
	return flow.TransactionDraft{
		Account:      flow.Account{ID: "acc-1", Name: "Checking", Currency: "EUR"},
		Amount:       "12.50",
		Category:     flow.Category{ID: 4, Name: "Groceries"},
		Counterparty: flow.Counterparty{Name: "Corner shop"},
		Notes:        "weekly run",
	}
}

func transferDraft() flow.TransferDraft {
	return flow.TransferDraft{
		Source:            flow.Account{ID: "a", Name: "Checking", Currency: "EUR"},
		Destination:       flow.Account{ID: "b", Name: "Travel", Currency: "USD"},
		SourceAmount:      "100",
		DestinationAmount: "108.5",
	}
}

func TestExternalIDFormat(t *testing.T) {
	at := time.Unix(1700000000, 0)
	require.Equal(t, "withdrawal-alice-1700000000", ExternalID("withdrawal", "alice", at))
}

func TestSubmitWithdrawalSameCurrency(t *testing.T) {
	f := &fakeLedger{}
	svc := newTestService(t, f, ServiceOptions{VerifyWrites: true})

	receipt, err := svc.SubmitTransaction(context.Background(),
		flow.User{Username: "alice"}, flow.KindWithdrawal, withdrawalDraft())
	require.NoError(t, err)
	require.True(t, receipt.Verified)
	require.NotEmpty(t, receipt.TransactionID)

	payloads := f.createdPayloads()
	require.Len(t, payloads, 1)
	tx := payloads[0]
	require.Equal(t, "withdrawal", tx.Type)
	require.Equal(t, "12.5", tx.Amount)
	require.Equal(t, "EUR", tx.CurrencyCode)
	require.Empty(t, tx.ForeignAmount, "same-currency write must omit foreign fields")
	require.Empty(t, tx.ForeignCurrencyCode)
	require.Equal(t, "Checking", tx.SourceName)
	require.Equal(t, "Corner shop", tx.DestinationName)
	require.Contains(t, tx.ExternalID, "withdrawal-alice-")
	require.NotEmpty(t, tx.Date)
}

func TestSubmitForeignCurrencyCarriesBothFigures(t *testing.T) {
	f := &fakeLedger{}
	svc := newTestService(t, f, ServiceOptions{})

	draft := withdrawalDraft()
	draft.Account.Currency = "USD"
	draft.Amount = "20"
	draft.ConvertedAmount = "18.42"

	_, err := svc.SubmitTransaction(context.Background(),
		flow.User{Username: "alice"}, flow.KindWithdrawal, draft)
	require.NoError(t, err)

	tx := f.createdPayloads()[0]
	require.Equal(t, "18.42", tx.Amount, "settlement figure is the amount")
	require.Equal(t, "EUR", tx.CurrencyCode)
	require.Equal(t, "20", tx.ForeignAmount, "typed figure travels as foreign")
	require.Equal(t, "USD", tx.ForeignCurrencyCode)
}

func TestSubmitDepositSwapsSourceAndDestination(t *testing.T) {
	f := &fakeLedger{}
	svc := newTestService(t, f, ServiceOptions{})

	_, err := svc.SubmitTransaction(context.Background(),
		flow.User{Username: "alice"}, flow.KindDeposit, withdrawalDraft())
	require.NoError(t, err)

	tx := f.createdPayloads()[0]
	require.Equal(t, "deposit", tx.Type)
	require.Equal(t, "Corner shop", tx.SourceName)
	require.Equal(t, "Checking", tx.DestinationName)
}

func TestSubmitRejectsIncompleteDrafts(t *testing.T) {
	f := &fakeLedger{}
	svc := newTestService(t, f, ServiceOptions{})

	cases := []func(*flow.TransactionDraft){
		func(d *flow.TransactionDraft) { d.Account = flow.Account{} },
		func(d *flow.TransactionDraft) { d.Amount = "" },
		func(d *flow.TransactionDraft) { d.Amount = "-3" },
		func(d *flow.TransactionDraft) { d.Category = flow.Category{} },
		func(d *flow.TransactionDraft) { d.Counterparty.Name = "  " },
	}
	for i, mutate := range cases {
		draft := withdrawalDraft()
		mutate(&draft)
		_, err := svc.SubmitTransaction(context.Background(),
			flow.User{Username: "alice"}, flow.KindWithdrawal, draft)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, "case %d", i)
	}
	require.Empty(t, f.createdPayloads(), "invalid drafts must never reach the wire")
}

func TestVerifyRetriesUntilVisible(t *testing.T) {
	f := &fakeLedger{hideUntil: 2}
	svc := newTestService(t, f, ServiceOptions{VerifyWrites: true, VerifyAttempts: 3})

	receipt, err := svc.SubmitTransaction(context.Background(),
		flow.User{Username: "alice"}, flow.KindWithdrawal, withdrawalDraft())
	require.NoError(t, err)
	require.True(t, receipt.Verified)
	require.Equal(t, 3, f.findQueries)
}

func TestVerifyExhaustionDowngradesToFailure(t *testing.T) {
	f := &fakeLedger{hideUntil: 100}
	svc := newTestService(t, f, ServiceOptions{VerifyWrites: true, VerifyAttempts: 2})

	_, err := svc.SubmitTransaction(context.Background(),
		flow.User{Username: "alice"}, flow.KindWithdrawal, withdrawalDraft())
	var vErr *VerifyError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, 2, vErr.Attempts)
}

func TestSubmitTransferWritesFees(t *testing.T) {
	f := &fakeLedger{}
	svc := newTestService(t, f, ServiceOptions{})

	draft := transferDraft()
	draft.SourceFee = "1.50"
	draft.DestinationFee = "0.75"

	receipt, err := svc.SubmitTransfer(context.Background(), flow.User{Username: "alice"}, draft)
	require.NoError(t, err)
	require.Empty(t, receipt.FeeNotices)

	payloads := f.createdPayloads()
	require.Len(t, payloads, 3)

	main := payloads[0]
	require.Equal(t, "transfer", main.Type)
	require.Equal(t, "100", main.Amount)
	require.Equal(t, "EUR", main.CurrencyCode)
	require.Equal(t, "108.5", main.ForeignAmount)
	require.Equal(t, "USD", main.ForeignCurrencyCode)

	require.Empty(t, main.Tags)

	feeOut, feeIn := payloads[1], payloads[2]
	require.Equal(t, "withdrawal", feeOut.Type)
	require.Equal(t, "1.5", feeOut.Amount)
	require.Equal(t, "EUR", feeOut.CurrencyCode)
	require.Contains(t, feeOut.ExternalID, "fee-out-alice-")
	require.Equal(t, []string{feeTag}, feeOut.Tags)
	require.Equal(t, "0.75", feeIn.Amount)
	require.Equal(t, "USD", feeIn.CurrencyCode)
	require.Contains(t, feeIn.ExternalID, "fee-in-alice-")
	require.Equal(t, []string{feeTag}, feeIn.Tags)
}

func TestTransferSameCurrencyOmitsForeignFields(t *testing.T) {
	f := &fakeLedger{}
	svc := newTestService(t, f, ServiceOptions{})

	draft := transferDraft()
	draft.Destination.Currency = "EUR"
	draft.DestinationAmount = "100"

	_, err := svc.SubmitTransfer(context.Background(), flow.User{Username: "alice"}, draft)
	require.NoError(t, err)

	main := f.createdPayloads()[0]
	require.Empty(t, main.ForeignAmount)
	require.Empty(t, main.ForeignCurrencyCode)
}

func TestFeeFailureIsSoft(t *testing.T) {
	f := &fakeLedger{}
	f.failCreate = func(tx Transaction) int {
		if tx.CategoryName == "Fees" && tx.CurrencyCode == "USD" {
			return http.StatusInternalServerError
		}
		return 0
	}
	svc := newTestService(t, f, ServiceOptions{})

	draft := transferDraft()
	draft.SourceFee = "1.50"
	draft.DestinationFee = "0.75"

	receipt, err := svc.SubmitTransfer(context.Background(), flow.User{Username: "alice"}, draft)
	require.NoError(t, err, "a fee failure must not fail the committed transfer")
	require.Len(t, receipt.FeeNotices, 1)
	require.Contains(t, receipt.FeeNotices[0], "0.75")
}

func TestNotConfiguredShortCircuits(t *testing.T) {
	f := &fakeLedger{}
	srv := f.server(t)
	client := NewClient(srv.URL, srv.Client(), NewSigner("", ""))
	svc := NewService(client, ServiceOptions{SettlementCurrency: "EUR"})

	_, err := svc.SubmitTransaction(context.Background(),
		flow.User{Username: "alice"}, flow.KindWithdrawal, withdrawalDraft())
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Empty(t, f.createdPayloads())
}

func TestCreateFailureClassifiedAsHTTPError(t *testing.T) {
	f := &fakeLedger{}
	f.failCreate = func(Transaction) int { return http.StatusBadGateway }
	svc := newTestService(t, f, ServiceOptions{})

	_, err := svc.SubmitTransaction(context.Background(),
		flow.User{Username: "alice"}, flow.KindWithdrawal, withdrawalDraft())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestRecentIsCachedAndInvalidatedByMutations(t *testing.T) {
	f := &fakeLedger{recent: []Transaction{{ID: "1", Type: "withdrawal", Amount: "5"}}}
	refresher := &fakeRefresher{}
	svc := newTestService(t, f, ServiceOptions{Refresher: refresher})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		list, err := svc.Recent(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	require.Equal(t, 1, f.recentCalls, "repeat reads inside TTL must coalesce")

	require.NoError(t, svc.Update(ctx, "alice", "1", Transaction{Type: "withdrawal", Amount: "6"}))

	_, err := svc.Recent(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, f.recentCalls, "mutation must invalidate the cached list")
	require.Equal(t, []string{"alice"}, refresher.calls)
}
