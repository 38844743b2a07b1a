package flow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"finflow/core/logger"
)

// Actors are the asynchronous operations the machine invokes on state
// entry. Implementations never mutate machine context; they return values
// that the machine folds back in through reducers. Memoization lives behind
// the implementation (cache layer), so the machine calls them liberally.
type Actors interface {
	Init(ctx context.Context) (User, error)
	Profile(ctx context.Context, u User) (photoURL, bio string, err error)
	Accounts(ctx context.Context, username string) ([]Account, error)
	Categories(ctx context.Context, username string, kind Kind) ([]Category, error)
	Suggestions(ctx context.Context, username string, kind Kind, categoryID int64) ([]Suggestion, error)
	Convert(ctx context.Context, from, to, amount string) (converted, rate string, err error)
	Balance(ctx context.Context, username string) (string, error)
}

// PersistFunc receives a snapshot after every transition. It must be
// best-effort: failures are the sink's problem, never the machine's.
type PersistFunc func(screen Screen, ctx Context)

type effect func()

// Machine is the hierarchical flow machine. All mutations are serialized
// through Send; screens read value snapshots via State and Context.
type Machine struct {
	mu      sync.Mutex
	screen  Screen
	ctx     Context
	epoch   uint64
	convSeq uint64

	actors       Actors
	persist      PersistFunc
	settlement   string
	actorTimeout time.Duration

	resume       *resumePoint
	onTransition func(Screen)

	snapMu   sync.Mutex
	snapNext *pendingSnapshot
	snapBusy bool
}

type pendingSnapshot struct {
	screen Screen
	ctx    Context
}

type resumePoint struct {
	screen Screen
	ctx    Context
}

// Option configures a Machine.
type Option func(*Machine)

// WithPersist wires the snapshot sink called after every transition.
func WithPersist(fn PersistFunc) Option {
	return func(m *Machine) { m.persist = fn }
}

// WithSettlementCurrency sets the ledger base currency used to decide
// whether a conversion lookup is needed.
func WithSettlementCurrency(code string) Option {
	return func(m *Machine) { m.settlement = strings.ToUpper(strings.TrimSpace(code)) }
}

// WithActorTimeout bounds every actor invocation.
func WithActorTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.actorTimeout = d
		}
	}
}

// WithServiceConfigured sets the initial ledger-availability flag.
func WithServiceConfigured(configured bool) Option {
	return func(m *Machine) { m.ctx.ServiceConfigured = configured }
}

// WithResume requests that after initialization the machine lands on the
// given screen with the given rehydrated context instead of home. Invalid
// screens are ignored and startup falls back to home.
func WithResume(screen Screen, ctx Context) Option {
	return func(m *Machine) {
		if ValidScreen(screen) && screen != ScreenInitializing {
			m.resume = &resumePoint{screen: screen, ctx: ctx}
		}
	}
}

// WithTransitionHook registers a callback invoked (outside the lock) after
// every processed event. The screen layer re-renders from it; renders must
// be idempotent since data arrivals fire it without a screen change.
func WithTransitionHook(fn func(Screen)) Option {
	return func(m *Machine) { m.onTransition = fn }
}

// New builds a machine in the initializing state. Call Start to kick off
// the init actor.
func New(actors Actors, opts ...Option) *Machine {
	m := &Machine{
		screen:       ScreenInitializing,
		ctx:          NewContext(),
		actors:       actors,
		settlement:   "EUR",
		actorTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the initialization actor. The machine stays in the
// initializing screen until the result arrives; init failure degrades to a
// guest identity rather than blocking startup.
func (m *Machine) Start() {
	go func() {
		actx, cancel := m.actorContext()
		defer cancel()
		user, err := m.actors.Init(actx)
		m.Send(initDone{user: user, err: err})
	}()
}

// State returns the active screen.
func (m *Machine) State() Screen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen
}

// Context returns a value snapshot of the machine context.
func (m *Machine) Context() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// Send is the single entry point for events. Events are processed in call
// order; an event with no meaning in the current screen is a no-op.
func (m *Machine) Send(ev Event) {
	m.mu.Lock()
	from := m.screen
	effects := m.step(ev)
	to := m.screen
	doPersist := m.persist != nil
	if doPersist {
		// Recorded while still holding the machine lock so snapshots
		// queue in event order.
		m.snapMu.Lock()
		m.snapNext = &pendingSnapshot{screen: m.screen, ctx: m.ctx}
		m.snapMu.Unlock()
	}
	m.mu.Unlock()

	if from != to {
		logger.Debug(context.Background(), "flow", "transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
	}
	if m.onTransition != nil {
		m.onTransition(to)
	}
	if doPersist {
		go m.flushSnapshot()
	}
	for _, eff := range effects {
		go eff()
	}
}

// flushSnapshot drains pending snapshots through a single writer, always
// persisting the newest one. A slow sink can only skip intermediate
// states, never leave a stale snapshot as the durable one.
func (m *Machine) flushSnapshot() {
	m.snapMu.Lock()
	if m.snapBusy {
		m.snapMu.Unlock()
		return
	}
	m.snapBusy = true
	for m.snapNext != nil {
		snap := m.snapNext
		m.snapNext = nil
		m.snapMu.Unlock()
		m.persist(snap.screen, snap.ctx)
		m.snapMu.Lock()
	}
	m.snapBusy = false
	m.snapMu.Unlock()
}

// step applies one event. Caller holds the lock.
func (m *Machine) step(ev Event) []effect {
	switch ev := ev.(type) {

	// Cross-cutting events, valid in any ready screen.
	case ServiceStatusChanged:
		if m.screen == ScreenInitializing {
			return nil
		}
		m.ctx = applyServiceStatus(m.ctx, ev.Configured)
		return nil
	case FetchAccounts:
		if !isAccountPicker(m.screen) {
			return nil
		}
		m.ctx = applyAccountsLoading(m.ctx)
		return []effect{m.loadAccounts(m.epoch)}
	case FetchCategories:
		if !isCategoryScreen(m.screen) {
			return nil
		}
		m.ctx = applyCategoriesLoading(m.ctx)
		return []effect{m.loadCategories(m.epoch, FlowOf(m.screen))}
	case FetchSuggestions:
		if m.screen != ScreenWithdrawalNotes && m.screen != ScreenDepositNotes {
			return nil
		}
		m.ctx = applySuggestionsLoading(m.ctx)
		return []effect{m.loadSuggestions(m.epoch, FlowOf(m.screen), m.ctx.Tx.Category.ID)}

	// Navigation.
	case NavigateHome:
		if m.screen == ScreenInitializing || m.screen == ScreenHome {
			return nil
		}
		m.ctx = resetFlow(m.ctx, FlowOf(m.screen))
		return m.enter(ScreenHome)
	case NavigateBack:
		if m.screen == ScreenInitializing || m.screen == ScreenHome {
			return nil
		}
		target := BackOf(m.screen)
		if target == ScreenHome {
			// Backing out of a flow's first screen cancels the flow.
			m.ctx = resetFlow(m.ctx, FlowOf(m.screen))
		}
		return m.enter(target)
	case StartWithdrawal:
		if m.screen != ScreenHome {
			return nil
		}
		return m.enter(ScreenWithdrawalAccounts)
	case StartDeposit:
		if m.screen != ScreenHome {
			return nil
		}
		return m.enter(ScreenDepositAccounts)
	case StartTransfer:
		if m.screen != ScreenHome {
			return nil
		}
		return m.enter(ScreenTransferSource)
	case OpenTransactions:
		if m.screen != ScreenHome {
			return nil
		}
		return m.enter(ScreenTransactionsList)
	case OpenTransaction:
		if m.screen != ScreenTransactionsList {
			return nil
		}
		m.ctx = applySelectedTx(m.ctx, ev.ID)
		return m.enter(ScreenTransactionsDetail)
	case EditTransaction:
		if m.screen != ScreenTransactionsDetail {
			return nil
		}
		return m.enter(ScreenTransactionsEdit)
	case OpenDebug:
		if m.screen != ScreenHome {
			return nil
		}
		return m.enter(ScreenDebug)

	// Guarded forward navigation.
	case NavigateAmount:
		switch m.screen {
		case ScreenWithdrawalAccounts, ScreenDepositAccounts:
			if !CanProceedFromAccounts(m.ctx.Tx) {
				return m.blocked("accounts")
			}
			return m.enter(amountScreen(FlowOf(m.screen)))
		}
		return nil
	case NavigateCategory:
		switch m.screen {
		case ScreenWithdrawalAmount, ScreenDepositAmount:
			if !CanProceedFromAmount(m.ctx.Tx) {
				return m.blocked("amount")
			}
			return m.enter(categoryScreen(FlowOf(m.screen)))
		}
		return nil
	case NavigateNotes:
		switch m.screen {
		case ScreenWithdrawalCategory, ScreenDepositCategory:
			if !CanProceedFromCategory(m.ctx.Tx) {
				return m.blocked("category")
			}
			return m.enter(notesScreen(FlowOf(m.screen)))
		case ScreenTransferFees:
			return m.enter(ScreenTransferNotes)
		}
		return nil
	case NavigateConfirm:
		switch m.screen {
		case ScreenWithdrawalNotes, ScreenDepositNotes:
			if !CanProceedFromCounterparty(m.ctx.Tx) {
				return m.blocked("counterparty")
			}
			return m.enter(confirmScreen(FlowOf(m.screen)))
		case ScreenTransferNotes:
			return m.enter(ScreenTransferConfirm)
		}
		return nil
	case NavigateFees:
		if m.screen != ScreenTransferAmount {
			return nil
		}
		if !CanProceedFromTransferAmount(m.ctx.Transfer) {
			return m.blocked("transfer_amount")
		}
		return m.enter(ScreenTransferFees)

	// Draft updates.
	case SelectAccount:
		switch m.screen {
		case ScreenWithdrawalAccounts, ScreenDepositAccounts:
			m.ctx = applySelectAccount(m.ctx, ev.Account)
			if CanProceedFromAccounts(m.ctx.Tx) {
				return m.enter(amountScreen(FlowOf(m.screen)))
			}
		}
		return nil
	case UpdateAmount:
		switch m.screen {
		case ScreenWithdrawalAmount, ScreenDepositAmount:
			m.ctx = applyAmount(m.ctx, ev.Value)
			return m.maybeConvert()
		}
		return nil
	case SelectCategory:
		switch m.screen {
		case ScreenWithdrawalCategory, ScreenDepositCategory:
			m.ctx = applySelectCategory(m.ctx, ev.Category)
			if CanProceedFromCategory(m.ctx.Tx) {
				return m.enter(notesScreen(FlowOf(m.screen)))
			}
		}
		return nil
	case UpdateCounterparty:
		switch m.screen {
		case ScreenWithdrawalNotes, ScreenDepositNotes:
			m.ctx = applyCounterparty(m.ctx, ev.ID, ev.Name)
		}
		return nil
	case UpdateNotes:
		switch m.screen {
		case ScreenWithdrawalNotes, ScreenDepositNotes, ScreenWithdrawalConfirm, ScreenDepositConfirm:
			m.ctx = applyNotes(m.ctx, ev.Value)
		}
		return nil
	case SetDate:
		switch m.screen {
		case ScreenWithdrawalNotes, ScreenDepositNotes, ScreenWithdrawalConfirm, ScreenDepositConfirm:
			m.ctx = applyDate(m.ctx, ev.Value)
		}
		return nil
	case SelectTransferSource:
		if m.screen != ScreenTransferSource {
			return nil
		}
		m.ctx = applyTransferSource(m.ctx, ev.Account)
		if CanProceedFromTransferSource(m.ctx.Transfer) {
			return m.enter(ScreenTransferDest)
		}
		return nil
	case SelectTransferDest:
		if m.screen != ScreenTransferDest {
			return nil
		}
		m.ctx = applyTransferDest(m.ctx, ev.Account)
		if CanProceedFromTransferDest(m.ctx.Transfer) {
			return m.enter(ScreenTransferAmount)
		}
		return nil
	case UpdateSourceAmount:
		if m.screen == ScreenTransferAmount {
			m.ctx = applySourceAmount(m.ctx, ev.Value)
		}
		return nil
	case UpdateDestinationAmount:
		if m.screen == ScreenTransferAmount {
			m.ctx = applyDestinationAmount(m.ctx, ev.Value)
		}
		return nil
	case UpdateSourceFee:
		if m.screen == ScreenTransferFees {
			m.ctx = applySourceFee(m.ctx, ev.Value)
		}
		return nil
	case UpdateDestinationFee:
		if m.screen == ScreenTransferFees {
			m.ctx = applyDestinationFee(m.ctx, ev.Value)
		}
		return nil
	case UpdateTransferNotes:
		if m.screen == ScreenTransferNotes || m.screen == ScreenTransferConfirm {
			m.ctx = applyTransferNotes(m.ctx, ev.Value)
		}
		return nil

	// Submission lifecycle. The network call is driven by the screen layer
	// through the ledger service; the machine tracks in-flight state and
	// clears the draft once the write is acknowledged.
	case SubmissionStarted:
		switch m.screen {
		case ScreenWithdrawalConfirm, ScreenDepositConfirm, ScreenTransferConfirm:
			m.ctx = applySubmitBegin(m.ctx, FlowOf(m.screen))
		}
		return nil
	case SubmissionFailed:
		switch m.screen {
		case ScreenWithdrawalConfirm, ScreenDepositConfirm, ScreenTransferConfirm:
			m.ctx = applySubmitFailed(m.ctx, FlowOf(m.screen), ev.Message)
		}
		return nil
	case SubmitTransaction:
		switch m.screen {
		case ScreenWithdrawalConfirm, ScreenDepositConfirm:
			m.ctx = resetFlow(m.ctx, FlowOf(m.screen))
			return m.enter(ScreenHome)
		}
		return nil
	case SubmitTransfer:
		if m.screen != ScreenTransferConfirm {
			return nil
		}
		m.ctx = resetFlow(m.ctx, KindTransfer)
		return m.enter(ScreenHome)

	// Actor results; stale results are dropped by epoch comparison.
	case initDone:
		if m.screen != ScreenInitializing {
			return nil
		}
		user := ev.user
		if ev.err != nil {
			logger.Warn(context.Background(), "flow", "init.degraded",
				slog.String("err", ev.err.Error()),
			)
			user = User{DisplayName: "Guest", Guest: true}
		}
		m.ctx = applyInit(m.ctx, user)
		effects := m.enterResume()
		if ev.err == nil {
			effects = append(effects, m.enrichProfile(user))
		}
		return effects
	case profileEnriched:
		// Late profile enrichment never invalidates other state.
		m.ctx = applyProfile(m.ctx, ev.photoURL, ev.bio)
		return nil
	case accountsLoaded:
		if ev.epoch != m.epoch {
			return m.stale("accounts")
		}
		m.ctx = applyAccountsResult(m.ctx, ev.accounts, ev.err)
		return nil
	case categoriesLoaded:
		if ev.epoch != m.epoch {
			return m.stale("categories")
		}
		m.ctx = applyCategoriesResult(m.ctx, ev.categories, ev.err)
		return nil
	case suggestionsLoaded:
		if ev.epoch != m.epoch {
			return m.stale("suggestions")
		}
		m.ctx = applySuggestionsResult(m.ctx, ev.suggestions, ev.err)
		return nil
	case conversionDone:
		if ev.epoch != m.epoch || ev.seq != m.convSeq {
			return m.stale("conversion")
		}
		m.ctx = applyConversionResult(m.ctx, ev.converted, ev.err)
		return nil
	case transferRateLoaded:
		if ev.epoch != m.epoch {
			return m.stale("rate")
		}
		m.ctx = applyTransferRateResult(m.ctx, ev.rate, ev.err)
		return nil
	case balanceLoaded:
		if ev.epoch != m.epoch {
			return m.stale("balance")
		}
		m.ctx = applyBalanceResult(m.ctx, ev.value, ev.err)
		return nil
	}

	return nil
}

// enter switches the active screen and returns its entry effects. Bumping
// the epoch here is what invalidates every in-flight actor of the screen
// being left.
func (m *Machine) enter(s Screen) []effect {
	m.screen = s
	m.epoch++

	switch s {
	case ScreenWithdrawalAccounts, ScreenDepositAccounts, ScreenTransferSource, ScreenTransferDest:
		m.ctx = applyAccountsLoading(m.ctx)
		return []effect{m.loadAccounts(m.epoch)}
	case ScreenWithdrawalCategory, ScreenDepositCategory:
		m.ctx = applyCategoriesLoading(m.ctx)
		return []effect{m.loadCategories(m.epoch, FlowOf(s))}
	case ScreenWithdrawalNotes, ScreenDepositNotes:
		m.ctx = applySuggestionsLoading(m.ctx)
		return []effect{m.loadSuggestions(m.epoch, FlowOf(s), m.ctx.Tx.Category.ID)}
	case ScreenTransferAmount:
		t := m.ctx.Transfer
		if t.Source.Currency != "" && t.Destination.Currency != "" && t.Source.Currency != t.Destination.Currency {
			return []effect{m.loadTransferRate(m.epoch, t.Source.Currency, t.Destination.Currency)}
		}
		return nil
	case ScreenHome:
		if m.ctx.User.Username != "" {
			return []effect{m.loadBalance(m.epoch, m.ctx.User.Username)}
		}
		return nil
	}
	return nil
}

// enterResume lands on the rehydrated screen after init, falling back to
// home when nothing was persisted.
func (m *Machine) enterResume() []effect {
	if m.resume == nil {
		return m.enter(ScreenHome)
	}
	point := m.resume
	m.resume = nil
	user := m.ctx.User
	configured := m.ctx.ServiceConfigured
	m.ctx = point.ctx
	m.ctx.User = user
	m.ctx.ServiceConfigured = configured
	return m.enter(point.screen)
}

func (m *Machine) maybeConvert() []effect {
	tx := m.ctx.Tx
	if tx.Account.Currency == "" || tx.Account.Currency == m.settlement {
		return nil
	}
	if !amountPositive(tx.Amount) {
		return nil
	}
	m.convSeq++
	m.ctx = applyConversionLoading(m.ctx)
	return []effect{m.convert(m.epoch, m.convSeq, tx.Account.Currency, m.settlement, tx.Amount)}
}

func (m *Machine) blocked(guard string) []effect {
	logger.Debug(context.Background(), "flow", "guard.blocked",
		slog.String("screen", string(m.screen)),
		slog.String("cause", guard),
	)
	return nil
}

func (m *Machine) stale(source string) []effect {
	logger.Debug(context.Background(), "flow.actor", "result.stale",
		slog.String("screen", string(m.screen)),
		slog.String("cause", source),
	)
	return nil
}

func (m *Machine) actorContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.actorTimeout)
}

// Entry effects. Each captures its inputs at spawn time and reports back
// through Send; errors travel inside the result event, never as panics.

func (m *Machine) loadAccounts(epoch uint64) effect {
	username := m.ctx.User.Username
	return func() {
		actx, cancel := m.actorContext()
		defer cancel()
		accounts, err := m.actors.Accounts(actx, username)
		m.Send(accountsLoaded{epoch: epoch, accounts: accounts, err: err})
	}
}

func (m *Machine) loadCategories(epoch uint64, kind Kind) effect {
	username := m.ctx.User.Username
	return func() {
		actx, cancel := m.actorContext()
		defer cancel()
		categories, err := m.actors.Categories(actx, username, kind)
		m.Send(categoriesLoaded{epoch: epoch, categories: categories, err: err})
	}
}

func (m *Machine) loadSuggestions(epoch uint64, kind Kind, categoryID int64) effect {
	username := m.ctx.User.Username
	return func() {
		actx, cancel := m.actorContext()
		defer cancel()
		suggestions, err := m.actors.Suggestions(actx, username, kind, categoryID)
		m.Send(suggestionsLoaded{epoch: epoch, suggestions: suggestions, err: err})
	}
}

func (m *Machine) convert(epoch, seq uint64, from, to, amount string) effect {
	return func() {
		actx, cancel := m.actorContext()
		defer cancel()
		converted, rate, err := m.actors.Convert(actx, from, to, amount)
		_ = rate
		m.Send(conversionDone{epoch: epoch, seq: seq, converted: converted, err: err})
	}
}

func (m *Machine) loadTransferRate(epoch uint64, from, to string) effect {
	return func() {
		actx, cancel := m.actorContext()
		defer cancel()
		_, rate, err := m.actors.Convert(actx, from, to, "1")
		m.Send(transferRateLoaded{epoch: epoch, rate: rate, err: err})
	}
}

func (m *Machine) loadBalance(epoch uint64, username string) effect {
	return func() {
		actx, cancel := m.actorContext()
		defer cancel()
		value, err := m.actors.Balance(actx, username)
		m.Send(balanceLoaded{epoch: epoch, value: value, err: err})
	}
}

func (m *Machine) enrichProfile(user User) effect {
	return func() {
		actx, cancel := m.actorContext()
		defer cancel()
		photoURL, bio, err := m.actors.Profile(actx, user)
		if err != nil {
			logger.Debug(context.Background(), "flow.actor", "profile.skip",
				slog.String("err", err.Error()),
			)
			return
		}
		m.Send(profileEnriched{photoURL: photoURL, bio: bio})
	}
}

func isAccountPicker(s Screen) bool {
	switch s {
	case ScreenWithdrawalAccounts, ScreenDepositAccounts, ScreenTransferSource, ScreenTransferDest:
		return true
	}
	return false
}

func isCategoryScreen(s Screen) bool {
	return s == ScreenWithdrawalCategory || s == ScreenDepositCategory
}

func amountScreen(kind Kind) Screen {
	if kind == KindDeposit {
		return ScreenDepositAmount
	}
	return ScreenWithdrawalAmount
}

func categoryScreen(kind Kind) Screen {
	if kind == KindDeposit {
		return ScreenDepositCategory
	}
	return ScreenWithdrawalCategory
}

func notesScreen(kind Kind) Screen {
	if kind == KindDeposit {
		return ScreenDepositNotes
	}
	return ScreenWithdrawalNotes
}

func confirmScreen(kind Kind) Screen {
	if kind == KindDeposit {
		return ScreenDepositConfirm
	}
	return ScreenWithdrawalConfirm
}
