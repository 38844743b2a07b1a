package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeActors struct {
	mu sync.Mutex

	user    User
	initErr error

	accounts     []Account
	accountsErr  error
	accountsGate chan struct{}
	accountCalls int

	categories  []Category
	suggestions []Suggestion

	converted  string
	rate       string
	convertErr error

	balance string
}

func (f *fakeActors) Init(context.Context) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.initErr
}

func (f *fakeActors) Profile(context.Context, User) (string, string, error) {
	return "", "", errors.New("no profile")
}

func (f *fakeActors) Accounts(context.Context, string) ([]Account, error) {
	f.mu.Lock()
	gate := f.accountsGate
	f.accountCalls++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts, f.accountsErr
}

func (f *fakeActors) Categories(context.Context, string, Kind) ([]Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories, nil
}

func (f *fakeActors) Suggestions(context.Context, string, Kind, int64) ([]Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suggestions, nil
}

func (f *fakeActors) Convert(context.Context, string, string, string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.converted, f.rate, f.convertErr
}

func (f *fakeActors) Balance(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeActors) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountCalls
}

func newReadyMachine(t *testing.T, actors *fakeActors, opts ...Option) *Machine {
	t.Helper()
	m := New(actors, opts...)
	m.Start()
	require.Eventually(t, func() bool {
		return m.State() != ScreenInitializing
	}, 2*time.Second, 5*time.Millisecond, "machine never left initializing")
	return m
}

func testAccounts() []Account {
	return []Account{
		{ID: "acc-1", Name: "Checking", Currency: "EUR", Usage: 10},
		{ID: "acc-2", Name: "Travel", Currency: "USD", Usage: 3},
	}
}

func TestWithdrawalHappyPath(t *testing.T) {
	actors := &fakeActors{
		user:        User{ID: 7, Username: "alice", DisplayName: "Alice"},
		accounts:    testAccounts(),
		categories:  []Category{{ID: 4, Name: "Groceries"}},
		suggestions: []Suggestion{{Name: "Corner shop"}},
		balance:     "120.00 EUR",
	}
	m := newReadyMachine(t, actors, WithSettlementCurrency("EUR"), WithServiceConfigured(true))
	require.Equal(t, ScreenHome, m.State())

	m.Send(StartWithdrawal{})
	require.Equal(t, ScreenWithdrawalAccounts, m.State())
	require.Eventually(t, func() bool {
		return len(m.Context().Accounts) == 2
	}, 2*time.Second, 5*time.Millisecond)

	m.Send(SelectAccount{Account: testAccounts()[0]})
	require.Equal(t, ScreenWithdrawalAmount, m.State())

	m.Send(UpdateAmount{Value: "12.50"})
	m.Send(NavigateCategory{})
	require.Equal(t, ScreenWithdrawalCategory, m.State())
	require.Eventually(t, func() bool {
		return len(m.Context().Categories) == 1
	}, 2*time.Second, 5*time.Millisecond)

	m.Send(SelectCategory{Category: Category{ID: 4, Name: "Groceries"}})
	require.Equal(t, ScreenWithdrawalNotes, m.State())

	m.Send(UpdateCounterparty{Name: "Corner shop"})
	m.Send(UpdateNotes{Value: "weekly run"})
	m.Send(NavigateConfirm{})
	require.Equal(t, ScreenWithdrawalConfirm, m.State())

	draft := m.Context().Tx
	require.Equal(t, "12.50", draft.Amount)
	require.Equal(t, "Corner shop", draft.Counterparty.Name)
	require.Equal(t, "weekly run", draft.Notes)

	m.Send(SubmitTransaction{})
	require.Equal(t, ScreenHome, m.State())
	require.Empty(t, m.Context().Tx.Amount, "draft survives submission")
}

func TestGuardsBlockForwardNavigation(t *testing.T) {
	actors := &fakeActors{user: User{Username: "alice"}, accounts: testAccounts()}
	m := newReadyMachine(t, actors)

	m.Send(StartWithdrawal{})
	m.Send(NavigateAmount{})
	require.Equal(t, ScreenWithdrawalAccounts, m.State(), "no account chosen yet")

	m.Send(SelectAccount{Account: testAccounts()[0]})
	require.Equal(t, ScreenWithdrawalAmount, m.State())

	for _, bad := range []string{"", "abc", "-5", "0"} {
		m.Send(UpdateAmount{Value: bad})
		m.Send(NavigateCategory{})
		require.Equal(t, ScreenWithdrawalAmount, m.State(), "amount %q must not pass", bad)
	}
}

func TestEventsOutsideScreenAreNoOps(t *testing.T) {
	actors := &fakeActors{user: User{Username: "alice"}}
	m := newReadyMachine(t, actors)

	before := m.Context()
	m.Send(UpdateAmount{Value: "99"})
	m.Send(SelectCategory{Category: Category{ID: 1, Name: "X"}})
	m.Send(SubmitTransaction{})
	m.Send(NavigateConfirm{})
	require.Equal(t, ScreenHome, m.State())
	require.Equal(t, before.Tx, m.Context().Tx)
}

func TestStaleAccountsResultIsDropped(t *testing.T) {
	gate := make(chan struct{})
	actors := &fakeActors{
		user:         User{Username: "alice"},
		accounts:     testAccounts(),
		accountsGate: gate,
	}
	m := newReadyMachine(t, actors)

	m.Send(StartWithdrawal{})
	require.Eventually(t, func() bool { return actors.calls() >= 1 },
		2*time.Second, 5*time.Millisecond)

	// Leave the picker before the load finishes; the epoch bump must
	// invalidate the in-flight result.
	m.Send(NavigateBack{})
	require.Equal(t, ScreenHome, m.State())
	close(gate)

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, m.Context().Accounts, "stale result leaked into context")
}

func TestAccountReselectionKeepsAmount(t *testing.T) {
	actors := &fakeActors{user: User{Username: "alice"}, accounts: testAccounts()}
	m := newReadyMachine(t, actors)

	m.Send(StartWithdrawal{})
	m.Send(SelectAccount{Account: testAccounts()[0]})
	m.Send(UpdateAmount{Value: "40"})

	m.Send(NavigateBack{})
	require.Equal(t, ScreenWithdrawalAccounts, m.State())
	m.Send(SelectAccount{Account: testAccounts()[0]})
	require.Equal(t, "40", m.Context().Tx.Amount)

	m.Send(NavigateBack{})
	m.Send(SelectAccount{Account: testAccounts()[1]})
	require.Empty(t, m.Context().Tx.Amount, "switching accounts must clear the amount")
}

func TestHomeResetsActiveFlowOnly(t *testing.T) {
	actors := &fakeActors{user: User{Username: "alice"}, accounts: testAccounts()}
	m := newReadyMachine(t, actors)

	m.Send(StartTransfer{})
	m.Send(SelectTransferSource{Account: testAccounts()[0]})
	m.Send(SelectTransferDest{Account: testAccounts()[1]})
	m.Send(UpdateSourceAmount{Value: "10"})
	m.Send(NavigateHome{})

	require.Equal(t, ScreenHome, m.State())
	require.Empty(t, m.Context().Transfer.Source.ID)
	require.Empty(t, m.Context().Transfer.SourceAmount)
}

func TestTransferSameCurrencySkipsRateLookup(t *testing.T) {
	same := []Account{
		{ID: "a", Name: "One", Currency: "EUR"},
		{ID: "b", Name: "Two", Currency: "EUR"},
	}
	actors := &fakeActors{user: User{Username: "alice"}, accounts: same, rate: "should-not-load"}
	m := newReadyMachine(t, actors)

	m.Send(StartTransfer{})
	m.Send(SelectTransferSource{Account: same[0]})
	m.Send(SelectTransferDest{Account: same[1]})
	require.Equal(t, ScreenTransferAmount, m.State())

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, m.Context().Transfer.ExchangeRate)
}

func TestSubmissionLifecycle(t *testing.T) {
	actors := &fakeActors{user: User{Username: "alice"}, accounts: testAccounts(),
		categories: []Category{{ID: 1, Name: "Food"}}}
	m := newReadyMachine(t, actors, WithServiceConfigured(true))

	m.Send(StartWithdrawal{})
	m.Send(SelectAccount{Account: testAccounts()[0]})
	m.Send(UpdateAmount{Value: "5"})
	m.Send(NavigateCategory{})
	m.Send(SelectCategory{Category: Category{ID: 1, Name: "Food"}})
	m.Send(UpdateCounterparty{Name: "Bakery"})
	m.Send(NavigateConfirm{})
	require.Equal(t, ScreenWithdrawalConfirm, m.State())

	m.Send(SubmissionStarted{})
	require.True(t, m.Context().Tx.Submitting)

	m.Send(SubmissionFailed{Message: "service unavailable"})
	require.False(t, m.Context().Tx.Submitting)
	require.Equal(t, "service unavailable", m.Context().Tx.SubmitMessage)

	m.Send(SubmissionStarted{})
	m.Send(SubmitTransaction{})
	require.Equal(t, ScreenHome, m.State())
	require.False(t, m.Context().Tx.Submitting)
}

func TestInitFailureDegradesToGuest(t *testing.T) {
	actors := &fakeActors{initErr: errors.New("telegram down")}
	m := newReadyMachine(t, actors)

	require.Equal(t, ScreenHome, m.State())
	u := m.Context().User
	require.True(t, u.Guest)
	require.Equal(t, "Guest", u.DisplayName)
}

func TestResumeLandsOnPersistedScreen(t *testing.T) {
	saved := NewContext()
	saved.Tx.Account = testAccounts()[0]
	saved.Tx.Amount = "old-typed" // scrubbed by the snapshot layer in production
	saved.Tx.Category = Category{ID: 4, Name: "Groceries"}

	actors := &fakeActors{user: User{Username: "alice"},
		suggestions: []Suggestion{{Name: "Corner shop"}}}
	m := newReadyMachine(t, actors, WithResume(ScreenWithdrawalNotes, saved))

	require.Equal(t, ScreenWithdrawalNotes, m.State())
	ctx := m.Context()
	require.Equal(t, "acc-1", ctx.Tx.Account.ID)
	require.Equal(t, "alice", ctx.User.Username, "identity comes from init, not the snapshot")
}

func TestResumeInvalidScreenFallsBackHome(t *testing.T) {
	actors := &fakeActors{user: User{Username: "alice"}}
	m := newReadyMachine(t, actors, WithResume(Screen("withdrawal/bogus"), NewContext()))
	require.Equal(t, ScreenHome, m.State())
}

func TestSlowPersistNeverLeavesStaleSnapshot(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var screens []Screen
	blockFirst := true
	persist := func(s Screen, _ Context) {
		mu.Lock()
		block := blockFirst
		blockFirst = false
		mu.Unlock()
		if block {
			<-gate
		}
		mu.Lock()
		screens = append(screens, s)
		mu.Unlock()
	}

	actors := &fakeActors{user: User{Username: "alice"}, accounts: testAccounts()}
	m := newReadyMachine(t, actors, WithPersist(persist))

	// Transitions raced against a stuck sink. The write that finally
	// lands must be the newest state, not whichever goroutine won.
	m.Send(StartWithdrawal{})
	m.Send(NavigateBack{})
	close(gate)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(screens) > 0 && screens[len(screens)-1] == m.State()
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, ScreenHome, m.State())
}

func TestPersistCalledAfterTransitions(t *testing.T) {
	var mu sync.Mutex
	var screens []Screen
	persist := func(s Screen, _ Context) {
		mu.Lock()
		screens = append(screens, s)
		mu.Unlock()
	}

	actors := &fakeActors{user: User{Username: "alice"}}
	m := newReadyMachine(t, actors, WithPersist(persist))
	m.Send(StartWithdrawal{})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range screens {
			if s == ScreenWithdrawalAccounts {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	_ = m
}
