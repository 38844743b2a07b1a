package screens

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"finflow/core/logger"
	tg "finflow/core/telegram"
	"finflow/core/telegram/callbacks"
	tghelpers "finflow/core/telegram/helpers"
	"finflow/internal/flow"
	"finflow/internal/ledger"
)

// Callback keys. Button payloads carry entity ids; everything else is
// resolved from the machine snapshot.
const (
	cbNavHome = "nav_home"
	cbNavBack = "nav_back"
	cbRetry   = "retry"

	cbStartWithdrawal  = "start_withdrawal"
	cbStartDeposit     = "start_deposit"
	cbStartTransfer    = "start_transfer"
	cbOpenTransactions = "open_txs"

	cbPickAccount    = "pick_account"
	cbPickCategory   = "pick_category"
	cbPickSuggestion = "pick_sugg"
	cbPickSource     = "pick_source"
	cbPickDest       = "pick_dest"

	cbGoCategory = "go_category"
	cbGoNotes    = "go_notes"
	cbGoConfirm  = "go_confirm"
	cbGoFees     = "go_fees"

	cbSubmit   = "confirm_submit"
	cbOpenTx   = "tx_open"
	cbEditTx   = "tx_edit"
	cbDeleteTx = "tx_delete"
)

func (h *Handler) registerCallbacks(reg *tg.Registry) {
	simple := map[string]flow.Event{
		cbNavHome:          flow.NavigateHome{},
		cbNavBack:          flow.NavigateBack{},
		cbStartWithdrawal:  flow.StartWithdrawal{},
		cbStartDeposit:     flow.StartDeposit{},
		cbStartTransfer:    flow.StartTransfer{},
		cbOpenTransactions: flow.OpenTransactions{},
		cbGoCategory:       flow.NavigateCategory{},
		cbGoNotes:          flow.NavigateNotes{},
		cbGoConfirm:        flow.NavigateConfirm{},
		cbGoFees:           flow.NavigateFees{},
		cbEditTx:           flow.EditTransaction{},
	}
	for key, ev := range simple {
		ev := ev
		_ = reg.RegisterCallback(key, func(c tele.Context) error {
			if s := h.session(c); s != nil {
				s.machine.Send(ev)
			}
			return nil
		})
	}

	_ = reg.RegisterCallback(cbRetry, h.onRetry)
	_ = reg.RegisterCallback(cbPickAccount, h.onPickAccount)
	_ = reg.RegisterCallback(cbPickCategory, h.onPickCategory)
	_ = reg.RegisterCallback(cbPickSuggestion, h.onPickSuggestion)
	_ = reg.RegisterCallback(cbPickSource, h.onPickTransferAccount(true))
	_ = reg.RegisterCallback(cbPickDest, h.onPickTransferAccount(false))
	_ = reg.RegisterCallback(cbSubmit, h.onSubmit)
	_ = reg.RegisterCallback(cbOpenTx, h.onOpenTx)
	_ = reg.RegisterCallback(cbDeleteTx, h.onDeleteTx)
}

// onRetry refires the loader that matches the current screen.
func (h *Handler) onRetry(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	switch s.machine.State() {
	case flow.ScreenWithdrawalAccounts, flow.ScreenDepositAccounts,
		flow.ScreenTransferSource, flow.ScreenTransferDest:
		s.machine.Send(flow.FetchAccounts{})
	case flow.ScreenWithdrawalCategory, flow.ScreenDepositCategory:
		s.machine.Send(flow.FetchCategories{})
	case flow.ScreenWithdrawalNotes, flow.ScreenDepositNotes:
		s.machine.Send(flow.FetchSuggestions{})
	}
	return nil
}

func (h *Handler) onPickAccount(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	if a, ok := accountByID(s.machine.Context().Accounts, callbacks.CallbackPayload(c)); ok {
		s.machine.Send(flow.SelectAccount{Account: a})
	}
	return nil
}

func (h *Handler) onPickTransferAccount(source bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		s := h.session(c)
		if s == nil {
			return nil
		}
		a, ok := accountByID(s.machine.Context().Accounts, callbacks.CallbackPayload(c))
		if !ok {
			return nil
		}
		if source {
			s.machine.Send(flow.SelectTransferSource{Account: a})
		} else {
			s.machine.Send(flow.SelectTransferDest{Account: a})
		}
		return nil
	}
}

func (h *Handler) onPickCategory(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	for _, cat := range s.machine.Context().Categories {
		if cat.ID == id {
			s.machine.Send(flow.SelectCategory{Category: cat})
			return nil
		}
	}
	return nil
}

func (h *Handler) onPickSuggestion(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	idx, err := callbacks.PayloadInt(c)
	if err != nil {
		return nil
	}
	suggestions := s.machine.Context().Tx.Suggestions
	if idx < 0 || idx >= len(suggestions) {
		return nil
	}
	s.machine.Send(flow.UpdateCounterparty{Name: suggestions[idx].Name})
	return nil
}

func (h *Handler) onOpenTx(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	if id := callbacks.CallbackPayload(c); id != "" {
		s.machine.Send(flow.OpenTransaction{ID: id})
	}
	return nil
}

func (h *Handler) onDeleteTx(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	id := callbacks.CallbackPayload(c)
	if id == "" {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	username := s.machine.Context().User.Username
	if err := h.opts.Ledger.Delete(ctx, username, id); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Delete failed"})
	}
	s.machine.Send(flow.NavigateBack{})
	return nil
}

// onSubmit hands the confirmed draft to the ledger service. The gate on
// the session swallows double taps before the machine marks the draft as
// in flight.
func (h *Handler) onSubmit(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	if !s.submitGate.CompareAndSwap(false, true) {
		return c.Respond(&tele.CallbackResponse{Text: "Already submitting"})
	}

	screen := s.machine.State()
	kind := flow.FlowOf(screen)
	switch screen {
	case flow.ScreenWithdrawalConfirm, flow.ScreenDepositConfirm, flow.ScreenTransferConfirm:
	default:
		s.submitGate.Store(false)
		return nil
	}

	fctx := s.machine.Context()
	s.machine.Send(flow.SubmissionStarted{})

	go func() {
		defer s.submitGate.Store(false)
		ctx := context.Background()

		var receipt ledger.Receipt
		var err error
		if kind == flow.KindTransfer {
			receipt, err = h.opts.Ledger.SubmitTransfer(ctx, fctx.User, fctx.Transfer)
		} else {
			receipt, err = h.opts.Ledger.SubmitTransaction(ctx, fctx.User, kind, fctx.Tx)
		}
		if err != nil {
			logger.Warn(ctx, "ledger", "submit.rejected",
				slog.String("tx_type", string(kind)),
				slog.String("err", err.Error()),
			)
			s.machine.Send(flow.SubmissionFailed{Message: submitErrorText(err)})
			return
		}

		if kind == flow.KindTransfer {
			s.machine.Send(flow.SubmitTransfer{})
		} else {
			s.machine.Send(flow.SubmitTransaction{})
		}
		s.notifyReceipt(kind, receipt)
	}()

	return c.Respond(&tele.CallbackResponse{Text: "Submitting..."})
}

func (s *session) notifyReceipt(kind flow.Kind, receipt ledger.Receipt) {
	if s.h.bot == nil || s.chat == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ %s recorded.", capitalize(string(kind)))
	for _, notice := range receipt.FeeNotices {
		b.WriteString("\n⚠️ " + notice)
	}
	if _, err := s.h.bot.Send(s.chat, b.String()); err != nil {
		logger.Warn(context.Background(), "tg", "receipt.send_failed",
			slog.String("err", err.Error()),
		)
	}
}

// submitErrorText maps the ledger error taxonomy to user-facing text.
func submitErrorText(err error) string {
	switch e := err.(type) {
	case *ledger.ValidationError:
		return fmt.Sprintf("❌ Check the %s field: %s.", e.Field, e.Reason)
	case *ledger.VerifyError:
		return "❌ The write could not be verified. Please check your history before retrying."
	case *ledger.HTTPError:
		if e.StatusCode >= 500 {
			return "❌ The service is temporarily unavailable. Try again shortly."
		}
		return "❌ The service rejected the transaction."
	case *ledger.TransportError:
		return "❌ Network problem. Try again."
	}
	if err == ledger.ErrNotConfigured {
		return "❌ Recording is not configured."
	}
	return "❌ Submission failed."
}

func accountByID(accounts []flow.Account, id string) (flow.Account, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return flow.Account{}, false
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, true
		}
	}
	return flow.Account{}, false
}
