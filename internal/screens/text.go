package screens

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tghelpers "finflow/core/telegram/helpers"
	"finflow/internal/flow"
)

// textScreens lists the screens that consume free-form text.
var textScreens = map[flow.Screen]bool{
	flow.ScreenWithdrawalAmount: true,
	flow.ScreenDepositAmount:    true,
	flow.ScreenWithdrawalNotes:  true,
	flow.ScreenDepositNotes:     true,
	flow.ScreenTransferAmount:   true,
	flow.ScreenTransferFees:     true,
	flow.ScreenTransferNotes:    true,
	flow.ScreenTransactionsEdit: true,
}

// InProgress reports whether the user's active screen consumes typed text.
func (h *Handler) InProgress(userID int64) bool {
	h.mu.Lock()
	s, ok := h.sessions[userID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return textScreens[s.machine.State()]
}

// HandleText routes a typed message into the active screen.
func (h *Handler) HandleText(c tele.Context) error {
	s := h.session(c)
	if s == nil {
		return nil
	}
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}

	switch screen := s.machine.State(); screen {
	case flow.ScreenWithdrawalAmount, flow.ScreenDepositAmount:
		s.machine.Send(flow.UpdateAmount{Value: text})

	case flow.ScreenWithdrawalNotes, flow.ScreenDepositNotes:
		h.handleNotesText(s, text)

	case flow.ScreenTransferAmount:
		t := s.machine.Context().Transfer
		sameCurrency := t.Source.Currency == t.Destination.Currency
		if t.SourceAmount == "" {
			s.machine.Send(flow.UpdateSourceAmount{Value: text})
			if sameCurrency {
				s.machine.Send(flow.UpdateDestinationAmount{Value: text})
			}
		} else if !sameCurrency {
			s.machine.Send(flow.UpdateDestinationAmount{Value: text})
		} else {
			s.machine.Send(flow.UpdateSourceAmount{Value: text})
			s.machine.Send(flow.UpdateDestinationAmount{Value: text})
		}

	case flow.ScreenTransferFees:
		t := s.machine.Context().Transfer
		if t.SourceFee == "" {
			s.machine.Send(flow.UpdateSourceFee{Value: text})
		} else {
			s.machine.Send(flow.UpdateDestinationFee{Value: text})
		}

	case flow.ScreenTransferNotes:
		s.machine.Send(flow.UpdateTransferNotes{Value: text})

	case flow.ScreenTransactionsEdit:
		return h.handleEditText(c, s, text)
	}
	return nil
}

// handleNotesText fills the notes screen fields in order: counterparty
// first, then notes. A "date " prefix updates the date on either step.
func (h *Handler) handleNotesText(s *session, text string) {
	if rest, ok := strings.CutPrefix(text, "date "); ok {
		if t, parsed := tghelpers.ParseFlexibleDate(rest); parsed {
			s.machine.Send(flow.SetDate{Value: t.UTC().Format(time.RFC3339)})
		}
		return
	}
	if s.machine.Context().Tx.Counterparty.Name == "" {
		s.machine.Send(flow.UpdateCounterparty{Name: text})
		return
	}
	s.machine.Send(flow.UpdateNotes{Value: text})
}

// handleEditText applies "field value" commands to the selected ledger
// transaction.
func (h *Handler) handleEditText(c tele.Context, s *session, text string) error {
	fctx := s.machine.Context()
	field, value, ok := strings.Cut(text, " ")
	if !ok || strings.TrimSpace(value) == "" {
		return tghelpers.SendText(c, "Use: notes <text>, amount <value> or date <yyyy-mm-dd>.")
	}
	value = strings.TrimSpace(value)

	ctx := tghelpers.BuildContext(c)
	tx, err := h.opts.Ledger.Get(ctx, fctx.User.Username, fctx.SelectedTxID)
	if err != nil {
		return tghelpers.SendText(c, "Could not load the transaction.")
	}

	switch strings.ToLower(field) {
	case "notes":
		tx.Notes = value
	case "amount":
		tx.Amount = value
	case "date":
		t, parsed := tghelpers.ParseFlexibleDate(value)
		if !parsed {
			return tghelpers.SendText(c, "Unrecognized date. Use yyyy-mm-dd.")
		}
		tx.Date = t.UTC().Format(time.RFC3339)
	default:
		return tghelpers.SendText(c, "Unknown field. Use notes, amount or date.")
	}

	if err := h.opts.Ledger.Update(ctx, fctx.User.Username, fctx.SelectedTxID, tx); err != nil {
		return tghelpers.SendText(c, submitErrorText(err))
	}
	s.machine.Send(flow.NavigateBack{})
	return tghelpers.SendText(c, "✅ Updated.")
}

// HandleDocument ignores documents; the wizard has no upload step.
func (h *Handler) HandleDocument(c tele.Context) error {
	return tghelpers.SendText(c, "Documents are not used here.")
}

// UnknownText nudges users who type outside an input screen.
func (h *Handler) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		s := h.session(c)
		if s == nil {
			return nil
		}
		s.rerender()
		return nil
	}
}

// UnknownDocument mirrors HandleDocument for the fallback provider.
func (h *Handler) UnknownDocument() tele.HandlerFunc {
	return h.HandleDocument
}

// UnknownCallback answers taps on buttons from stale keyboards.
func (h *Handler) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "That action is no longer available"})
	}
}
