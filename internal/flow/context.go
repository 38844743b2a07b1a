package flow

// User is the identity populated once by the init actor. Photo and bio may
// arrive late without invalidating any other state.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	Guest       bool   `json:"guest"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Bio         string `json:"bio,omitempty"`
	ColorScheme string `json:"color_scheme,omitempty"`
}

// Account is a catalog entry from the usage API.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
	Usage    int    `json:"usage_count"`
}

// Category is a catalog entry scoped to a transaction kind.
type Category struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	BudgetName string `json:"budget_name,omitempty"`
	Usage      int    `json:"usage_count"`
}

// Counterparty is the destination (withdrawal) or source (deposit) of a
// transaction. ID zero means a free-text name not seen before.
type Counterparty struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Suggestion is one counterparty autocomplete candidate.
type Suggestion struct {
	Name  string `json:"name"`
	Usage int    `json:"usage_count"`
}

// TransactionDraft is the in-progress withdrawal/deposit record. One
// instance is shared by both flows; it is reset on completion, cancellation,
// and home navigation.
type TransactionDraft struct {
	Account         Account      `json:"account"`
	Amount          string       `json:"amount"`
	ConvertedAmount string       `json:"converted_amount,omitempty"`
	Category        Category     `json:"category"`
	Counterparty    Counterparty `json:"counterparty"`
	Notes           string       `json:"notes"`
	Date            string       `json:"date,omitempty"`
	Suggestions     []Suggestion `json:"-"`

	// Transient UI flags, never persisted.
	LoadingConversion bool              `json:"-"`
	Submitting        bool              `json:"-"`
	SubmitMessage     string            `json:"-"`
	ValidationErrors  map[string]string `json:"-"`
}

// TransferDraft is the in-progress transfer record.
type TransferDraft struct {
	Source            Account `json:"source"`
	Destination       Account `json:"destination"`
	SourceAmount      string  `json:"source_amount"`
	DestinationAmount string  `json:"destination_amount"`
	ExchangeRate      string  `json:"exchange_rate,omitempty"`
	SourceFee         string  `json:"source_fee,omitempty"`
	DestinationFee    string  `json:"destination_fee,omitempty"`
	Notes             string  `json:"notes"`
	Date              string  `json:"date,omitempty"`

	Submitting    bool   `json:"-"`
	SubmitMessage string `json:"-"`
}

// Context is the normalized machine state screens render from. It is owned
// exclusively by the machine: every mutation goes through a named reducer,
// and Machine.Context returns value snapshots.
type Context struct {
	User              User `json:"user"`
	ServiceConfigured bool `json:"service_configured"`

	Accounts   []Account  `json:"accounts,omitempty"`
	Categories []Category `json:"categories,omitempty"`

	AccountsLoading    bool   `json:"-"`
	AccountsError      string `json:"-"`
	CategoriesLoading  bool   `json:"-"`
	CategoriesError    string `json:"-"`
	SuggestionsLoading bool   `json:"-"`
	SuggestionsError   string `json:"-"`
	ConversionError    string `json:"-"`

	Balance      string `json:"-"`
	BalanceError string `json:"-"`

	SelectedTxID string `json:"selected_tx_id,omitempty"`

	Tx       TransactionDraft `json:"tx"`
	Transfer TransferDraft    `json:"transfer"`
}

// NewContext returns the default context for a fresh session.
func NewContext() Context {
	return Context{
		Tx:       defaultTransactionDraft(),
		Transfer: defaultTransferDraft(),
	}
}

func defaultTransactionDraft() TransactionDraft {
	return TransactionDraft{}
}

func defaultTransferDraft() TransferDraft {
	return TransferDraft{}
}
