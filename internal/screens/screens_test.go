package screens

import (
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"finflow/internal/flow"
	"finflow/internal/ledger"
)

func newTestHandler() *Handler {
	svc := ledger.NewService(
		ledger.NewClient("http://127.0.0.1:0", nil, ledger.NewSigner("", "")),
		ledger.ServiceOptions{SettlementCurrency: "EUR"},
	)
	return New(Options{Ledger: svc, SettlementCurrency: "EUR"})
}

func TestConcurrentFirstContactSharesOneSession(t *testing.T) {
	h := newTestHandler()
	sender := &tele.User{ID: 7, FirstName: "Alice"}

	const callers = 16
	results := make([]*session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := h.sessionFor(sender, nil)
			// Every caller must see a fully built machine, even the
			// ones arriving mid-construction.
			_ = s.machine.State()
			results[i] = s
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, h.SessionCount())
	for _, s := range results {
		require.Same(t, results[0], s)
		require.NotNil(t, s.machine)
	}
}

func TestSubmitErrorText(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&ledger.ValidationError{Field: "amount", Reason: "must be > 0"}, "❌ Check the amount field: must be > 0."},
		{&ledger.VerifyError{ExternalID: "x", Attempts: 3}, "❌ The write could not be verified. Please check your history before retrying."},
		{&ledger.HTTPError{StatusCode: http.StatusBadGateway, Status: "502"}, "❌ The service is temporarily unavailable. Try again shortly."},
		{&ledger.HTTPError{StatusCode: http.StatusUnprocessableEntity, Status: "422"}, "❌ The service rejected the transaction."},
		{&ledger.TransportError{Err: errors.New("timeout")}, "❌ Network problem. Try again."},
		{ledger.ErrNotConfigured, "❌ Recording is not configured."},
		{errors.New("anything else"), "❌ Submission failed."},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, submitErrorText(tc.err))
	}
}

func TestAccountByID(t *testing.T) {
	accounts := []flow.Account{
		{ID: "acc-1", Name: "Checking"},
		{ID: "acc-2", Name: "Travel"},
	}
	a, ok := accountByID(accounts, "acc-2")
	require.True(t, ok)
	require.Equal(t, "Travel", a.Name)

	_, ok = accountByID(accounts, "missing")
	require.False(t, ok)
	_, ok = accountByID(accounts, "  ")
	require.False(t, ok)
}

func TestMarkdownEscaping(t *testing.T) {
	require.Equal(t, `Joe's \*Diner\*`, md("Joe's *Diner*"))
	require.Equal(t, `a\_b`, md("a_b"))
	require.Equal(t, "plain text", md("plain text"))
}

func TestTextScreensCoverEveryInputScreen(t *testing.T) {
	for _, s := range []flow.Screen{
		flow.ScreenWithdrawalAmount,
		flow.ScreenDepositAmount,
		flow.ScreenWithdrawalNotes,
		flow.ScreenDepositNotes,
		flow.ScreenTransferAmount,
		flow.ScreenTransferFees,
		flow.ScreenTransferNotes,
		flow.ScreenTransactionsEdit,
	} {
		_, ok := textScreens[s]
		require.True(t, ok, "screen %q should accept typed text", s)
	}
	_, ok := textScreens[flow.ScreenHome]
	require.False(t, ok)
}
