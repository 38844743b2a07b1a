package flow

// Event is the closed set of inputs the machine accepts. Screens construct
// only the exported events; lowercase events are actor results fed back by
// the machine itself. An event that has no meaning in the current screen is
// a no-op, never an error.
type Event interface {
	isEvent()
}

// Navigation events.

// NavigateHome leaves any flow, resets its draft, and returns home.
type NavigateHome struct{}

// NavigateBack steps to the previous screen; always defined, never guarded.
type NavigateBack struct{}

// StartWithdrawal opens the withdrawal wizard on its account picker.
type StartWithdrawal struct{}

// StartDeposit opens the deposit wizard on its account picker.
type StartDeposit struct{}

// StartTransfer opens the transfer wizard on its source account picker.
type StartTransfer struct{}

// OpenTransactions opens the recent-transactions list.
type OpenTransactions struct{}

// OpenTransaction opens the detail view for one transaction.
type OpenTransaction struct{ ID string }

// EditTransaction moves from detail view to the edit screen.
type EditTransaction struct{}

// OpenDebug opens the debug screen.
type OpenDebug struct{}

// Guarded forward navigation.

// NavigateAmount advances from an account picker once an account is chosen.
type NavigateAmount struct{}

// NavigateCategory advances from the amount screen when the amount is valid.
type NavigateCategory struct{}

// NavigateNotes advances towards the notes screen.
type NavigateNotes struct{}

// NavigateConfirm advances to the confirm screen.
type NavigateConfirm struct{}

// NavigateFees advances from the transfer amount screen to the fees screen.
type NavigateFees struct{}

// Draft updates.

// SelectAccount sets the draft account and, when valid, auto-advances to
// the amount screen. Re-selecting the identical account keeps the amount.
type SelectAccount struct{ Account Account }

// UpdateAmount replaces the draft amount (decimal string, as typed).
type UpdateAmount struct{ Value string }

// SelectCategory sets the draft category and auto-advances to notes.
type SelectCategory struct{ Category Category }

// UpdateCounterparty sets the destination (withdrawal) or source (deposit)
// name; ID may be zero for a free-text counterparty never seen before.
type UpdateCounterparty struct {
	ID   int64
	Name string
}

// UpdateNotes replaces the draft notes.
type UpdateNotes struct{ Value string }

// SetDate overrides the transaction date (ISO-8601); empty means "now".
type SetDate struct{ Value string }

// SelectTransferSource sets the transfer source account and advances.
type SelectTransferSource struct{ Account Account }

// SelectTransferDest sets the transfer destination account and advances.
type SelectTransferDest struct{ Account Account }

// UpdateSourceAmount replaces the amount leaving the source account.
type UpdateSourceAmount struct{ Value string }

// UpdateDestinationAmount replaces the amount arriving at the destination.
type UpdateDestinationAmount struct{ Value string }

// UpdateSourceFee sets the exit fee charged by the source account.
type UpdateSourceFee struct{ Value string }

// UpdateDestinationFee sets the entry fee charged by the destination.
type UpdateDestinationFee struct{ Value string }

// UpdateTransferNotes replaces the transfer notes.
type UpdateTransferNotes struct{ Value string }

// Submission handoff. The network submission itself is driven by the screen
// through the ledger service; these events only reset the draft and return
// home once the user has moved on.

// SubmissionStarted marks the active draft as in flight so the confirm
// screen can disable its submit affordance.
type SubmissionStarted struct{}

// SubmissionFailed surfaces a submission error on the confirm screen.
type SubmissionFailed struct{ Message string }

// SubmitTransaction ends a withdrawal/deposit flow.
type SubmitTransaction struct{}

// SubmitTransfer ends a transfer flow.
type SubmitTransfer struct{}

// Cross-cutting events, accepted in any ready screen.

// FetchAccounts re-requests the account catalog (manual retry affordance).
type FetchAccounts struct{}

// FetchCategories re-requests the category catalog for the active flow.
type FetchCategories struct{}

// FetchSuggestions re-requests counterparty suggestions for the notes screen.
type FetchSuggestions struct{}

// ServiceStatusChanged toggles the "ledger configured" flag.
type ServiceStatusChanged struct{ Configured bool }

// Actor results. Each carries the epoch captured when the effect was
// spawned; results from an exited screen are dropped.

type initDone struct {
	user User
	err  error
}

type profileEnriched struct {
	photoURL string
	bio      string
}

type accountsLoaded struct {
	epoch    uint64
	accounts []Account
	err      error
}

type categoriesLoaded struct {
	epoch      uint64
	categories []Category
	err        error
}

type suggestionsLoaded struct {
	epoch       uint64
	suggestions []Suggestion
	err         error
}

type conversionDone struct {
	epoch     uint64
	seq       uint64
	converted string
	rate      string
	err       error
}

type transferRateLoaded struct {
	epoch uint64
	rate  string
	err   error
}

type balanceLoaded struct {
	epoch uint64
	value string
	err   error
}

func (NavigateHome) isEvent()            {}
func (NavigateBack) isEvent()            {}
func (StartWithdrawal) isEvent()         {}
func (StartDeposit) isEvent()            {}
func (StartTransfer) isEvent()           {}
func (OpenTransactions) isEvent()        {}
func (OpenTransaction) isEvent()         {}
func (EditTransaction) isEvent()         {}
func (OpenDebug) isEvent()               {}
func (NavigateAmount) isEvent()          {}
func (NavigateCategory) isEvent()        {}
func (NavigateNotes) isEvent()           {}
func (NavigateConfirm) isEvent()         {}
func (NavigateFees) isEvent()            {}
func (SelectAccount) isEvent()           {}
func (UpdateAmount) isEvent()            {}
func (SelectCategory) isEvent()          {}
func (UpdateCounterparty) isEvent()      {}
func (UpdateNotes) isEvent()             {}
func (SetDate) isEvent()                 {}
func (SelectTransferSource) isEvent()    {}
func (SelectTransferDest) isEvent()      {}
func (UpdateSourceAmount) isEvent()      {}
func (UpdateDestinationAmount) isEvent() {}
func (UpdateSourceFee) isEvent()         {}
func (UpdateDestinationFee) isEvent()    {}
func (UpdateTransferNotes) isEvent()     {}
func (SubmissionStarted) isEvent()       {}
func (SubmissionFailed) isEvent()        {}
func (SubmitTransaction) isEvent()       {}
func (SubmitTransfer) isEvent()          {}
func (FetchAccounts) isEvent()           {}
func (FetchCategories) isEvent()         {}
func (FetchSuggestions) isEvent()        {}
func (ServiceStatusChanged) isEvent()    {}
func (initDone) isEvent()                {}
func (profileEnriched) isEvent()         {}
func (accountsLoaded) isEvent()          {}
func (categoriesLoaded) isEvent()        {}
func (suggestionsLoaded) isEvent()       {}
func (conversionDone) isEvent()          {}
func (transferRateLoaded) isEvent()      {}
func (balanceLoaded) isEvent()           {}
