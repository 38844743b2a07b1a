package screens

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"finflow/core/buildinfo"
	"finflow/core/telegram/format"
	"finflow/core/telegram/keyboard"
	"finflow/internal/flow"
)

const maxPickerButtons = 8

// render produces the message text and inline keyboard for a screen. It is
// a pure projection of the machine snapshot except for the transactions
// screens, which read the ledger's own cache.
func (h *Handler) render(s *session, screen flow.Screen, fctx flow.Context) (string, *tele.ReplyMarkup) {
	switch screen {
	case flow.ScreenInitializing:
		return "Starting up...", nil
	case flow.ScreenHome:
		return h.renderHome(fctx)
	case flow.ScreenDebug:
		return h.renderDebug(fctx)

	case flow.ScreenWithdrawalAccounts, flow.ScreenDepositAccounts:
		return renderAccountPicker(screen, fctx)
	case flow.ScreenWithdrawalAmount, flow.ScreenDepositAmount:
		return renderAmount(screen, fctx)
	case flow.ScreenWithdrawalCategory, flow.ScreenDepositCategory:
		return renderCategory(screen, fctx)
	case flow.ScreenWithdrawalNotes, flow.ScreenDepositNotes:
		return renderNotes(screen, fctx)
	case flow.ScreenWithdrawalConfirm, flow.ScreenDepositConfirm:
		return renderConfirm(screen, fctx)

	case flow.ScreenTransferSource:
		return renderTransferPicker(fctx, "Transfer: pick the *source* account.", cbPickSource, "")
	case flow.ScreenTransferDest:
		return renderTransferPicker(fctx, "Transfer: pick the *destination* account.", cbPickDest, fctx.Transfer.Source.ID)
	case flow.ScreenTransferAmount:
		return renderTransferAmount(fctx)
	case flow.ScreenTransferFees:
		return renderTransferFees(fctx)
	case flow.ScreenTransferNotes:
		return renderTransferNotes(fctx)
	case flow.ScreenTransferConfirm:
		return renderTransferConfirm(fctx)

	case flow.ScreenTransactionsList:
		return h.renderTransactionsList(fctx)
	case flow.ScreenTransactionsDetail:
		return h.renderTransactionDetail(fctx)
	case flow.ScreenTransactionsEdit:
		return h.renderTransactionEdit(fctx)
	}
	return "", nil
}

func (h *Handler) renderHome(fctx flow.Context) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello, *%s*!\n", fctx.User.DisplayName)
	if fctx.Balance != "" {
		fmt.Fprintf(&b, "Balance: `%s`\n", fctx.Balance)
	}
	if !fctx.ServiceConfigured {
		b.WriteString("\n_Recording is not configured; browsing only._\n")
	}
	b.WriteString("\nWhat would you like to do?")

	rows := [][]keyboard.InlineBtn{
		{
			{Text: "💸 Withdrawal", Unique: cbStartWithdrawal},
			{Text: "💰 Deposit", Unique: cbStartDeposit},
		},
		{
			{Text: "🔁 Transfer", Unique: cbStartTransfer},
			{Text: "📒 Transactions", Unique: cbOpenTransactions},
		},
	}
	return b.String(), keyboard.InlineButtonsRows(rows...)
}

func (h *Handler) renderDebug(fctx flow.Context) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	b.WriteString("*Diagnostics*\n")
	fmt.Fprintf(&b, "version: `%s`\n", buildinfo.Version)
	fmt.Fprintf(&b, "commit: `%s`\n", buildinfo.Commit)
	fmt.Fprintf(&b, "sessions: `%d`\n", h.SessionCount())
	fmt.Fprintf(&b, "user: `%d` (%s)\n", fctx.User.ID, fctx.User.Username)
	fmt.Fprintf(&b, "service configured: `%t`\n", fctx.ServiceConfigured)
	return b.String(), backHomeMarkup()
}

func renderAccountPicker(screen flow.Screen, fctx flow.Context) (string, *tele.ReplyMarkup) {
	title := "Withdrawal"
	if flow.FlowOf(screen) == flow.KindDeposit {
		title = "Deposit"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*: pick an account.\n", title)

	switch {
	case fctx.AccountsLoading:
		b.WriteString("\n_Loading accounts..._")
		return b.String(), backHomeMarkup()
	case fctx.AccountsError != "":
		fmt.Fprintf(&b, "\nCould not load accounts: %s", fctx.AccountsError)
		return b.String(), retryMarkup()
	case len(fctx.Accounts) == 0:
		b.WriteString("\nNo accounts found.")
		return b.String(), retryMarkup()
	}

	var btns []keyboard.InlineBtn
	for _, a := range limitAccounts(fctx.Accounts) {
		label := a.Name
		if a.Currency != "" {
			label = fmt.Sprintf("%s (%s)", a.Name, a.Currency)
		}
		btns = append(btns, keyboard.InlineBtn{Text: label, Unique: cbPickAccount, Data: a.ID})
	}
	markup := keyboard.InlineButtonsNPerRow(btns, 2)
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderAmount(screen flow.Screen, fctx flow.Context) (string, *tele.ReplyMarkup) {
	d := fctx.Tx
	var b strings.Builder
	fmt.Fprintf(&b, "Account: *%s* (%s)\n\n", d.Account.Name, d.Account.Currency)
	b.WriteString("Type the amount.\n")
	if d.Amount != "" {
		fmt.Fprintf(&b, "\nAmount: `%s %s`\n", d.Amount, d.Account.Currency)
		switch {
		case d.LoadingConversion:
			b.WriteString("_Converting..._\n")
		case fctx.ConversionError != "":
			fmt.Fprintf(&b, "Conversion unavailable: %s\n", fctx.ConversionError)
		case d.ConvertedAmount != "":
			fmt.Fprintf(&b, "Converted: `%s`\n", d.ConvertedAmount)
		}
	}

	markup := &tele.ReplyMarkup{}
	if flow.CanProceedFromAmount(d) {
		markup.InlineKeyboard = append(markup.InlineKeyboard,
			[]tele.InlineButton{*markup.Data("Next ➡️", cbGoCategory).Inline()})
	}
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderCategory(screen flow.Screen, fctx flow.Context) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	b.WriteString("Pick a category.\n")

	switch {
	case fctx.CategoriesLoading:
		b.WriteString("\n_Loading categories..._")
		return b.String(), backHomeMarkup()
	case fctx.CategoriesError != "":
		fmt.Fprintf(&b, "\nCould not load categories: %s", fctx.CategoriesError)
		return b.String(), retryMarkup()
	case len(fctx.Categories) == 0:
		b.WriteString("\nNo categories found.")
		return b.String(), retryMarkup()
	}

	var btns []keyboard.InlineBtn
	for _, cat := range limitCategories(fctx.Categories) {
		btns = append(btns, keyboard.InlineBtn{
			Text:   cat.Name,
			Unique: cbPickCategory,
			Data:   strconv.FormatInt(cat.ID, 10),
		})
	}
	markup := keyboard.InlineButtonsNPerRow(btns, 2)
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderNotes(screen flow.Screen, fctx flow.Context) (string, *tele.ReplyMarkup) {
	d := fctx.Tx
	who := "recipient"
	if flow.FlowOf(screen) == flow.KindDeposit {
		who = "payer"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Category: *%s*\n\n", d.Category.Name)
	if d.Counterparty.Name == "" {
		fmt.Fprintf(&b, "Type the %s name.\n", who)
	} else {
		fmt.Fprintf(&b, "%s: *%s*\n", capitalize(who), md(d.Counterparty.Name))
		b.WriteString("Type a note, or proceed.\n")
	}
	if d.Notes != "" {
		fmt.Fprintf(&b, "Notes: _%s_\n", md(d.Notes))
	}
	if d.Date != "" {
		fmt.Fprintf(&b, "Date: `%s`\n", d.Date)
	}

	markup := &tele.ReplyMarkup{}
	if d.Counterparty.Name == "" && !fctx.SuggestionsLoading {
		for i, sg := range d.Suggestions {
			if i >= maxPickerButtons {
				break
			}
			markup.InlineKeyboard = append(markup.InlineKeyboard,
				[]tele.InlineButton{*markup.Data(sg.Name, cbPickSuggestion, strconv.Itoa(i)).Inline()})
		}
	}
	if flow.CanProceedFromCounterparty(d) {
		markup.InlineKeyboard = append(markup.InlineKeyboard,
			[]tele.InlineButton{*markup.Data("Next ➡️", cbGoConfirm).Inline()})
	}
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderConfirm(screen flow.Screen, fctx flow.Context) (string, *tele.ReplyMarkup) {
	d := fctx.Tx
	title := "withdrawal"
	if flow.FlowOf(screen) == flow.KindDeposit {
		title = "deposit"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Confirm %s*\n\n", title)
	fmt.Fprintf(&b, "Account: %s\n", d.Account.Name)
	fmt.Fprintf(&b, "Amount: `%s %s`\n", d.Amount, d.Account.Currency)
	if d.ConvertedAmount != "" {
		fmt.Fprintf(&b, "Converted: `%s`\n", d.ConvertedAmount)
	}
	fmt.Fprintf(&b, "Category: %s\n", d.Category.Name)
	fmt.Fprintf(&b, "Counterparty: %s\n", md(d.Counterparty.Name))
	if d.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", md(d.Notes))
	}
	if d.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", d.Date)
	}
	if d.Submitting {
		b.WriteString("\n_Submitting..._")
		return b.String(), nil
	}
	if d.SubmitMessage != "" {
		fmt.Fprintf(&b, "\n%s\n", d.SubmitMessage)
	}
	if !fctx.ServiceConfigured {
		b.WriteString("\n_Recording is not configured._")
		return b.String(), backHomeMarkup()
	}

	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		[]tele.InlineButton{*markup.Data("✅ Submit", cbSubmit).Inline()})
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderTransferPicker(fctx flow.Context, title, unique, excludeID string) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	b.WriteString(title + "\n")

	switch {
	case fctx.AccountsLoading:
		b.WriteString("\n_Loading accounts..._")
		return b.String(), backHomeMarkup()
	case fctx.AccountsError != "":
		fmt.Fprintf(&b, "\nCould not load accounts: %s", fctx.AccountsError)
		return b.String(), retryMarkup()
	}

	var btns []keyboard.InlineBtn
	for _, a := range limitAccounts(fctx.Accounts) {
		if a.ID == excludeID {
			continue
		}
		label := a.Name
		if a.Currency != "" {
			label = fmt.Sprintf("%s (%s)", a.Name, a.Currency)
		}
		btns = append(btns, keyboard.InlineBtn{Text: label, Unique: unique, Data: a.ID})
	}
	if len(btns) == 0 {
		b.WriteString("\nNo other accounts available.")
		return b.String(), backHomeMarkup()
	}
	markup := keyboard.InlineButtonsNPerRow(btns, 2)
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderTransferAmount(fctx flow.Context) (string, *tele.ReplyMarkup) {
	t := fctx.Transfer
	sameCurrency := t.Source.Currency == t.Destination.Currency
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* → *%s*\n\n", t.Source.Name, t.Destination.Name)
	if sameCurrency {
		b.WriteString("Type the amount.\n")
	} else {
		fmt.Fprintf(&b, "Type the amount sent (%s), then the amount received (%s).\n",
			t.Source.Currency, t.Destination.Currency)
		if t.ExchangeRate != "" {
			fmt.Fprintf(&b, "Rate hint: `%s`\n", t.ExchangeRate)
		}
	}
	if t.SourceAmount != "" {
		fmt.Fprintf(&b, "\nSent: `%s %s`\n", t.SourceAmount, t.Source.Currency)
	}
	if !sameCurrency && t.DestinationAmount != "" {
		fmt.Fprintf(&b, "Received: `%s %s`\n", t.DestinationAmount, t.Destination.Currency)
	}

	markup := &tele.ReplyMarkup{}
	if flow.CanProceedFromTransferAmount(t) {
		markup.InlineKeyboard = append(markup.InlineKeyboard,
			[]tele.InlineButton{*markup.Data("Next ➡️", cbGoFees).Inline()})
	}
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderTransferFees(fctx flow.Context) (string, *tele.ReplyMarkup) {
	t := fctx.Transfer
	var b strings.Builder
	b.WriteString("*Transfer fees* (optional)\n\n")
	fmt.Fprintf(&b, "Type the exit fee (%s), then the entry fee (%s), or skip.\n",
		t.Source.Currency, t.Destination.Currency)
	if t.SourceFee != "" {
		fmt.Fprintf(&b, "\nExit fee: `%s %s`\n", t.SourceFee, t.Source.Currency)
	}
	if t.DestinationFee != "" {
		fmt.Fprintf(&b, "Entry fee: `%s %s`\n", t.DestinationFee, t.Destination.Currency)
	}

	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		[]tele.InlineButton{*markup.Data("Next ➡️", cbGoNotes).Inline()})
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderTransferNotes(fctx flow.Context) (string, *tele.ReplyMarkup) {
	t := fctx.Transfer
	var b strings.Builder
	b.WriteString("Type a note for this transfer, or proceed.\n")
	if t.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: _%s_\n", md(t.Notes))
	}

	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		[]tele.InlineButton{*markup.Data("Next ➡️", cbGoConfirm).Inline()})
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func renderTransferConfirm(fctx flow.Context) (string, *tele.ReplyMarkup) {
	t := fctx.Transfer
	var b strings.Builder
	b.WriteString("*Confirm transfer*\n\n")
	fmt.Fprintf(&b, "From: %s\n", t.Source.Name)
	fmt.Fprintf(&b, "To: %s\n", t.Destination.Name)
	fmt.Fprintf(&b, "Sent: `%s %s`\n", t.SourceAmount, t.Source.Currency)
	if t.Source.Currency != t.Destination.Currency {
		fmt.Fprintf(&b, "Received: `%s %s`\n", t.DestinationAmount, t.Destination.Currency)
	}
	if t.SourceFee != "" {
		fmt.Fprintf(&b, "Exit fee: `%s %s`\n", t.SourceFee, t.Source.Currency)
	}
	if t.DestinationFee != "" {
		fmt.Fprintf(&b, "Entry fee: `%s %s`\n", t.DestinationFee, t.Destination.Currency)
	}
	if t.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", md(t.Notes))
	}
	if t.Submitting {
		b.WriteString("\n_Submitting..._")
		return b.String(), nil
	}
	if t.SubmitMessage != "" {
		fmt.Fprintf(&b, "\n%s\n", t.SubmitMessage)
	}
	if !fctx.ServiceConfigured {
		b.WriteString("\n_Recording is not configured._")
		return b.String(), backHomeMarkup()
	}

	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		[]tele.InlineButton{*markup.Data("✅ Submit", cbSubmit).Inline()})
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func (h *Handler) renderTransactionsList(fctx flow.Context) (string, *tele.ReplyMarkup) {
	txs, err := h.opts.Ledger.Recent(context.Background(), fctx.User.Username)
	if err != nil {
		return fmt.Sprintf("Could not load transactions: %s", err), backHomeMarkup()
	}
	if len(txs) == 0 {
		return "No transactions yet.", backHomeMarkup()
	}

	var b strings.Builder
	b.WriteString("*Recent transactions*\n")
	markup := &tele.ReplyMarkup{}
	for i, tx := range txs {
		if i >= maxPickerButtons {
			break
		}
		label := fmt.Sprintf("%s %s %s", txTypeIcon(tx.Type), tx.Amount, tx.CurrencyCode)
		if tx.DestinationName != "" {
			label += " → " + tx.DestinationName
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard,
			[]tele.InlineButton{*markup.Data(label, cbOpenTx, tx.ID).Inline()})
	}
	appendNavRow(markup, navHome)
	return b.String(), markup
}

func (h *Handler) renderTransactionDetail(fctx flow.Context) (string, *tele.ReplyMarkup) {
	tx, err := h.opts.Ledger.Get(context.Background(), fctx.User.Username, fctx.SelectedTxID)
	if err != nil {
		return fmt.Sprintf("Could not load the transaction: %s", err), backHomeMarkup()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s %s*\n\n", capitalize(tx.Type), txTypeIcon(tx.Type))
	fmt.Fprintf(&b, "Amount: `%s %s`\n", tx.Amount, tx.CurrencyCode)
	if tx.ForeignAmount != "" {
		fmt.Fprintf(&b, "Foreign: `%s %s`\n", tx.ForeignAmount, tx.ForeignCurrencyCode)
	}
	if tx.SourceName != "" {
		fmt.Fprintf(&b, "From: %s\n", tx.SourceName)
	}
	if tx.DestinationName != "" {
		fmt.Fprintf(&b, "To: %s\n", tx.DestinationName)
	}
	if tx.CategoryName != "" {
		fmt.Fprintf(&b, "Category: %s\n", tx.CategoryName)
	}
	if tx.Notes != "" {
		fmt.Fprintf(&b, "Notes: _%s_\n", md(tx.Notes))
	}
	fmt.Fprintf(&b, "Date: `%s`\n", tx.Date)

	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = append(markup.InlineKeyboard, []tele.InlineButton{
		*markup.Data("✏️ Edit", cbEditTx).Inline(),
		*markup.Data("🗑 Delete", cbDeleteTx, tx.ID).Inline(),
	})
	appendNavRow(markup, navBack|navHome)
	return b.String(), markup
}

func (h *Handler) renderTransactionEdit(fctx flow.Context) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	b.WriteString("*Edit transaction*\n\n")
	b.WriteString("Send one of:\n")
	b.WriteString("`notes <text>`\n")
	b.WriteString("`amount <value>`\n")
	b.WriteString("`date <yyyy-mm-dd>`\n")
	return b.String(), backHomeMarkup()
}

// md escapes user-typed text interpolated into Markdown messages.
func md(s string) string {
	escaped, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return escaped
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func txTypeIcon(t string) string {
	switch t {
	case "withdrawal":
		return "💸"
	case "deposit":
		return "💰"
	case "transfer":
		return "🔁"
	}
	return "•"
}

type navFlags int

const (
	navBack navFlags = 1 << iota
	navHome
)

func appendNavRow(markup *tele.ReplyMarkup, flags navFlags) {
	var row []tele.InlineButton
	if flags&navBack != 0 {
		row = append(row, *markup.Data("⬅️ Back", cbNavBack).Inline())
	}
	if flags&navHome != 0 {
		row = append(row, *markup.Data("🏠 Home", cbNavHome).Inline())
	}
	markup.InlineKeyboard = append(markup.InlineKeyboard, row)
}

func backHomeMarkup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	appendNavRow(markup, navBack|navHome)
	return markup
}

func retryMarkup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		[]tele.InlineButton{*markup.Data("🔄 Retry", cbRetry).Inline()})
	appendNavRow(markup, navBack|navHome)
	return markup
}

func limitAccounts(accounts []flow.Account) []flow.Account {
	if len(accounts) > maxPickerButtons {
		return accounts[:maxPickerButtons]
	}
	return accounts
}

func limitCategories(categories []flow.Category) []flow.Category {
	if len(categories) > maxPickerButtons {
		return categories[:maxPickerButtons]
	}
	return categories
}
