package flow

// Screen identifies a single wizard screen. The machine guarantees exactly
// one active screen at a time; hierarchy is expressed through FlowOf rather
// than runtime-assembled state paths.
type Screen string

const (
	ScreenInitializing Screen = "initializing"
	ScreenHome         Screen = "home"
	ScreenDebug        Screen = "debug"

	ScreenWithdrawalAccounts Screen = "withdrawal/accounts"
	ScreenWithdrawalAmount   Screen = "withdrawal/amount"
	ScreenWithdrawalCategory Screen = "withdrawal/category"
	ScreenWithdrawalNotes    Screen = "withdrawal/notes"
	ScreenWithdrawalConfirm  Screen = "withdrawal/confirm"

	ScreenDepositAccounts Screen = "deposit/accounts"
	ScreenDepositAmount   Screen = "deposit/amount"
	ScreenDepositCategory Screen = "deposit/category"
	ScreenDepositNotes    Screen = "deposit/notes"
	ScreenDepositConfirm  Screen = "deposit/confirm"

	ScreenTransferSource  Screen = "transfer/source"
	ScreenTransferDest    Screen = "transfer/destination"
	ScreenTransferAmount  Screen = "transfer/amount"
	ScreenTransferFees    Screen = "transfer/fees"
	ScreenTransferNotes   Screen = "transfer/notes"
	ScreenTransferConfirm Screen = "transfer/confirm"

	ScreenTransactionsList   Screen = "transactions/list"
	ScreenTransactionsDetail Screen = "transactions/detail"
	ScreenTransactionsEdit   Screen = "transactions/edit"
)

// Kind names one of the transaction wizards.
type Kind string

const (
	KindNone       Kind = ""
	KindWithdrawal Kind = "withdrawal"
	KindDeposit    Kind = "deposit"
	KindTransfer   Kind = "transfer"
)

var flowOf = map[Screen]Kind{
	ScreenWithdrawalAccounts: KindWithdrawal,
	ScreenWithdrawalAmount:   KindWithdrawal,
	ScreenWithdrawalCategory: KindWithdrawal,
	ScreenWithdrawalNotes:    KindWithdrawal,
	ScreenWithdrawalConfirm:  KindWithdrawal,

	ScreenDepositAccounts: KindDeposit,
	ScreenDepositAmount:   KindDeposit,
	ScreenDepositCategory: KindDeposit,
	ScreenDepositNotes:    KindDeposit,
	ScreenDepositConfirm:  KindDeposit,

	ScreenTransferSource:  KindTransfer,
	ScreenTransferDest:    KindTransfer,
	ScreenTransferAmount:  KindTransfer,
	ScreenTransferFees:    KindTransfer,
	ScreenTransferNotes:   KindTransfer,
	ScreenTransferConfirm: KindTransfer,
}

// FlowOf reports which wizard a screen belongs to, or KindNone for
// screens outside the three transaction flows.
func FlowOf(s Screen) Kind {
	return flowOf[s]
}

// backOf maps every screen to its unconditional back target; there are no
// dead ends, and the first screen of each flow returns home.
var backOf = map[Screen]Screen{
	ScreenHome:  ScreenHome,
	ScreenDebug: ScreenHome,

	ScreenWithdrawalAccounts: ScreenHome,
	ScreenWithdrawalAmount:   ScreenWithdrawalAccounts,
	ScreenWithdrawalCategory: ScreenWithdrawalAmount,
	ScreenWithdrawalNotes:    ScreenWithdrawalCategory,
	ScreenWithdrawalConfirm:  ScreenWithdrawalNotes,

	ScreenDepositAccounts: ScreenHome,
	ScreenDepositAmount:   ScreenDepositAccounts,
	ScreenDepositCategory: ScreenDepositAmount,
	ScreenDepositNotes:    ScreenDepositCategory,
	ScreenDepositConfirm:  ScreenDepositNotes,

	ScreenTransferSource:  ScreenHome,
	ScreenTransferDest:    ScreenTransferSource,
	ScreenTransferAmount:  ScreenTransferDest,
	ScreenTransferFees:    ScreenTransferAmount,
	ScreenTransferNotes:   ScreenTransferFees,
	ScreenTransferConfirm: ScreenTransferNotes,

	ScreenTransactionsList:   ScreenHome,
	ScreenTransactionsDetail: ScreenTransactionsList,
	ScreenTransactionsEdit:   ScreenTransactionsDetail,
}

// BackOf returns the back-navigation target for a screen.
func BackOf(s Screen) Screen {
	if target, ok := backOf[s]; ok {
		return target
	}
	return ScreenHome
}

// ValidScreen reports whether s names a known screen. Used when
// rehydrating persisted snapshots from untrusted storage.
func ValidScreen(s Screen) bool {
	if s == ScreenInitializing || s == ScreenHome || s == ScreenDebug {
		return true
	}
	_, ok := backOf[s]
	return ok
}
