package flow

// Reducers are the only mutation sites of the machine context. Each takes a
// context by value and returns the updated value, which keeps every change
// replayable and unit-testable in isolation.

// applySelectAccount sets the draft account. Re-selecting the account that
// is already chosen must not wipe a typed amount; a different account
// clears amount and converted amount.
func applySelectAccount(c Context, a Account) Context {
	if c.Tx.Account.ID != a.ID {
		c.Tx.Amount = ""
		c.Tx.ConvertedAmount = ""
	}
	c.Tx.Account = a
	return c
}

func applyAmount(c Context, raw string) Context {
	c.Tx.Amount = raw
	c.Tx.ConvertedAmount = ""
	c.ConversionError = ""
	return c
}

// applySelectCategory sets the category; suggestions are scoped to the
// category, so changing it discards the previous candidate list.
func applySelectCategory(c Context, cat Category) Context {
	if c.Tx.Category.ID != cat.ID {
		c.Tx.Suggestions = nil
	}
	c.Tx.Category = cat
	return c
}

func applyCounterparty(c Context, id int64, name string) Context {
	c.Tx.Counterparty = Counterparty{ID: id, Name: name}
	return c
}

func applyNotes(c Context, notes string) Context {
	c.Tx.Notes = notes
	return c
}

func applyDate(c Context, date string) Context {
	c.Tx.Date = date
	return c
}

func applyTransferSource(c Context, a Account) Context {
	if c.Transfer.Source.ID != a.ID {
		c.Transfer.SourceAmount = ""
		c.Transfer.DestinationAmount = ""
		c.Transfer.ExchangeRate = ""
	}
	c.Transfer.Source = a
	return c
}

func applyTransferDest(c Context, a Account) Context {
	if c.Transfer.Destination.ID != a.ID {
		c.Transfer.DestinationAmount = ""
		c.Transfer.ExchangeRate = ""
	}
	c.Transfer.Destination = a
	return c
}

func applySourceAmount(c Context, raw string) Context {
	c.Transfer.SourceAmount = raw
	return c
}

func applyDestinationAmount(c Context, raw string) Context {
	c.Transfer.DestinationAmount = raw
	return c
}

func applySourceFee(c Context, raw string) Context {
	c.Transfer.SourceFee = raw
	return c
}

func applyDestinationFee(c Context, raw string) Context {
	c.Transfer.DestinationFee = raw
	return c
}

func applyTransferNotes(c Context, notes string) Context {
	c.Transfer.Notes = notes
	return c
}

// resetFlow restores a flow's draft to defaults. KindNone resets both.
func resetFlow(c Context, kind Kind) Context {
	switch kind {
	case KindWithdrawal, KindDeposit:
		c.Tx = defaultTransactionDraft()
		c.ConversionError = ""
		c.SuggestionsError = ""
	case KindTransfer:
		c.Transfer = defaultTransferDraft()
	default:
		c.Tx = defaultTransactionDraft()
		c.Transfer = defaultTransferDraft()
		c.ConversionError = ""
		c.SuggestionsError = ""
	}
	return c
}

func applySubmitBegin(c Context, kind Kind) Context {
	if kind == KindTransfer {
		c.Transfer.Submitting = true
		c.Transfer.SubmitMessage = ""
	} else {
		c.Tx.Submitting = true
		c.Tx.SubmitMessage = ""
	}
	return c
}

func applySubmitFailed(c Context, kind Kind, msg string) Context {
	if kind == KindTransfer {
		c.Transfer.Submitting = false
		c.Transfer.SubmitMessage = msg
	} else {
		c.Tx.Submitting = false
		c.Tx.SubmitMessage = msg
	}
	return c
}

// Actor result reducers.

func applyInit(c Context, u User) Context {
	c.User = u
	return c
}

func applyProfile(c Context, photoURL, bio string) Context {
	if photoURL != "" {
		c.User.PhotoURL = photoURL
	}
	if bio != "" {
		c.User.Bio = bio
	}
	return c
}

func applyServiceStatus(c Context, configured bool) Context {
	c.ServiceConfigured = configured
	return c
}

func applyAccountsLoading(c Context) Context {
	c.AccountsLoading = true
	c.AccountsError = ""
	return c
}

func applyAccountsResult(c Context, accounts []Account, err error) Context {
	c.AccountsLoading = false
	if err != nil {
		c.AccountsError = err.Error()
		return c
	}
	c.AccountsError = ""
	c.Accounts = accounts
	return c
}

func applyCategoriesLoading(c Context) Context {
	c.CategoriesLoading = true
	c.CategoriesError = ""
	return c
}

func applyCategoriesResult(c Context, categories []Category, err error) Context {
	c.CategoriesLoading = false
	if err != nil {
		c.CategoriesError = err.Error()
		return c
	}
	c.CategoriesError = ""
	c.Categories = categories
	return c
}

func applySuggestionsLoading(c Context) Context {
	c.SuggestionsLoading = true
	c.SuggestionsError = ""
	return c
}

func applySuggestionsResult(c Context, suggestions []Suggestion, err error) Context {
	c.SuggestionsLoading = false
	if err != nil {
		c.SuggestionsError = err.Error()
		return c
	}
	c.SuggestionsError = ""
	c.Tx.Suggestions = suggestions
	return c
}

func applyConversionLoading(c Context) Context {
	c.Tx.LoadingConversion = true
	c.ConversionError = ""
	return c
}

func applyConversionResult(c Context, converted string, err error) Context {
	c.Tx.LoadingConversion = false
	if err != nil {
		c.ConversionError = err.Error()
		return c
	}
	c.ConversionError = ""
	c.Tx.ConvertedAmount = converted
	return c
}

func applyTransferRateResult(c Context, rate string, err error) Context {
	if err != nil {
		// A missing rate only disables prefill; the screen still accepts
		// manual entry for both sides.
		return c
	}
	c.Transfer.ExchangeRate = rate
	return c
}

func applyBalanceResult(c Context, value string, err error) Context {
	if err != nil {
		c.BalanceError = err.Error()
		return c
	}
	c.BalanceError = ""
	c.Balance = value
	return c
}

func applySelectedTx(c Context, id string) Context {
	c.SelectedTxID = id
	return c
}
