package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountGuardRejectsMalformedInput(t *testing.T) {
	cases := map[string]bool{
		"":        false,
		"  ":      false,
		"abc":     false,
		"0":       false,
		"-1":      false,
		"-0.01":   false,
		"1,50":    false,
		"0.01":    true,
		"12.50":   true,
		" 3 ":     true,
		"1000000": true,
	}
	for raw, want := range cases {
		d := TransactionDraft{Amount: raw}
		require.Equal(t, want, CanProceedFromAmount(d), "amount %q", raw)
	}
}

func TestAccountGuardsNeedIDAndCurrency(t *testing.T) {
	require.False(t, CanProceedFromAccounts(TransactionDraft{}))
	require.False(t, CanProceedFromAccounts(TransactionDraft{Account: Account{ID: "a"}}))
	require.False(t, CanProceedFromAccounts(TransactionDraft{Account: Account{Currency: "EUR"}}))
	require.True(t, CanProceedFromAccounts(TransactionDraft{Account: Account{ID: "a", Currency: "EUR"}}))
}

func TestCounterpartyGuardAllowsFreeText(t *testing.T) {
	require.False(t, CanProceedFromCounterparty(TransactionDraft{}))
	require.False(t, CanProceedFromCounterparty(TransactionDraft{Counterparty: Counterparty{Name: "   "}}))
	// ID zero is fine for a never-seen-before name.
	require.True(t, CanProceedFromCounterparty(TransactionDraft{Counterparty: Counterparty{Name: "New shop"}}))
}

func TestTransferAmountGuardNeedsBothSides(t *testing.T) {
	require.False(t, CanProceedFromTransferAmount(TransferDraft{SourceAmount: "10"}))
	require.False(t, CanProceedFromTransferAmount(TransferDraft{SourceAmount: "10", DestinationAmount: "x"}))
	require.True(t, CanProceedFromTransferAmount(TransferDraft{SourceAmount: "10", DestinationAmount: "9.5"}))
}
