package flow

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Guards gate forward navigation only. They are pure, synchronous and
// total: any malformed draft yields false, never a panic. A stricter check
// happens again at submission time, because date and conversion are only
// finalized on confirm.

// CanProceedFromAccounts requires an account with both id and currency.
func CanProceedFromAccounts(d TransactionDraft) bool {
	return d.Account.ID != "" && d.Account.Currency != ""
}

// CanProceedFromAmount requires an amount that parses to a number > 0.
func CanProceedFromAmount(d TransactionDraft) bool {
	return amountPositive(d.Amount)
}

// CanProceedFromCategory requires both category id and name.
func CanProceedFromCategory(d TransactionDraft) bool {
	return d.Category.ID != 0 && d.Category.Name != ""
}

// CanProceedFromCounterparty requires a non-empty counterparty name; the id
// may stay zero for a free-text, never-seen-before counterparty.
func CanProceedFromCounterparty(d TransactionDraft) bool {
	return strings.TrimSpace(d.Counterparty.Name) != ""
}

// CanProceedFromTransferSource requires a source account with id and currency.
func CanProceedFromTransferSource(t TransferDraft) bool {
	return t.Source.ID != "" && t.Source.Currency != ""
}

// CanProceedFromTransferDest requires a destination account with id and currency.
func CanProceedFromTransferDest(t TransferDraft) bool {
	return t.Destination.ID != "" && t.Destination.Currency != ""
}

// CanProceedFromTransferAmount requires both amounts to parse > 0.
func CanProceedFromTransferAmount(t TransferDraft) bool {
	return amountPositive(t.SourceAmount) && amountPositive(t.DestinationAmount)
}

func amountPositive(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return false
	}
	return d.IsPositive()
}
