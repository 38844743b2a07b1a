package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finflow/core/logger"
	"finflow/internal/cache"
	"finflow/internal/flow"
)

// Refresher invalidates dependent caches after a verified write so the
// next screens show fresh data without a full reload.
type Refresher interface {
	InvalidateBalance(ctx context.Context, username string)
}

// Receipt reports the outcome of a submission.
type Receipt struct {
	ExternalID    string
	TransactionID string
	Verified      bool
	// FeeNotices carries soft warnings for fee writes that failed after
	// the main transfer committed. Best-effort: never an error.
	FeeNotices []string
}

// Service builds provider payloads from drafts, submits them and verifies
// the write by idempotency key.
type Service struct {
	client         *Client
	settlement     string
	verify         bool
	verifyAttempts int
	verifyDelay    time.Duration
	refresher      Refresher
	recent         *cache.Cache[[]Transaction]

	now   func() time.Time
	sleep func(time.Duration)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	SettlementCurrency string
	VerifyWrites       bool
	VerifyAttempts     int
	VerifyDelay        time.Duration
	RecentTTL          time.Duration
	Refresher          Refresher
}

// NewService builds a submission service around a ledger client.
func NewService(client *Client, opts ServiceOptions) *Service {
	if opts.VerifyAttempts <= 0 {
		opts.VerifyAttempts = 3
	}
	if opts.VerifyDelay <= 0 {
		opts.VerifyDelay = 500 * time.Millisecond
	}
	if opts.RecentTTL <= 0 {
		opts.RecentTTL = 5 * time.Minute
	}
	return &Service{
		client:         client,
		settlement:     strings.ToUpper(strings.TrimSpace(opts.SettlementCurrency)),
		verify:         opts.VerifyWrites,
		verifyAttempts: opts.VerifyAttempts,
		verifyDelay:    opts.VerifyDelay,
		refresher:      opts.Refresher,
		recent:         cache.New[[]Transaction]("recent_transactions", opts.RecentTTL),
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// Configured reports whether submissions are possible.
func (s *Service) Configured() bool {
	return s.client.Configured()
}

// ExternalID composes the deterministic idempotency key. It doubles as the
// dedupe hint sent to the server and the verification handle.
func ExternalID(txType, username string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", txType, username, at.Unix())
}

// SubmitTransaction submits a withdrawal or deposit draft.
func (s *Service) SubmitTransaction(ctx context.Context, user flow.User, kind flow.Kind, draft flow.TransactionDraft) (Receipt, error) {
	if !s.client.Configured() {
		return Receipt{}, ErrNotConfigured
	}

	payload, err := s.buildTransactionPayload(kind, draft)
	if err != nil {
		return Receipt{}, err
	}
	payload.ExternalID = ExternalID(payload.Type, user.Username, s.now())

	receipt, err := s.submitOne(ctx, user.Username, payload)
	if err != nil {
		return receipt, err
	}
	s.refresh(ctx, user.Username)
	return receipt, nil
}

// SubmitTransfer submits a transfer draft as up to three sequential ledger
// writes: the main transfer plus optional exit and entry fees. A fee-write
// failure does not roll back the committed main transfer; it is logged and
// reported as a soft notice in the receipt.
func (s *Service) SubmitTransfer(ctx context.Context, user flow.User, draft flow.TransferDraft) (Receipt, error) {
	if !s.client.Configured() {
		return Receipt{}, ErrNotConfigured
	}

	payload, err := s.buildTransferPayload(draft)
	if err != nil {
		return Receipt{}, err
	}
	at := s.now()
	payload.ExternalID = ExternalID(payload.Type, user.Username, at)

	receipt, err := s.submitOne(ctx, user.Username, payload)
	if err != nil {
		return receipt, err
	}

	for _, fee := range s.feeWrites(draft, user.Username, at) {
		if _, err := s.client.Create(ctx, user.Username, fee); err != nil {
			logger.Warn(ctx, "ledger", "transfer.fee_failed",
				slog.String("external_id", fee.ExternalID),
				slog.String("err", err.Error()),
			)
			receipt.FeeNotices = append(receipt.FeeNotices,
				fmt.Sprintf("fee %s %s was not recorded", fee.Amount, fee.CurrencyCode))
		}
	}

	s.refresh(ctx, user.Username)
	return receipt, nil
}

// Recent lists the latest transactions, served from the five-minute cache
// that submissions invalidate.
func (s *Service) Recent(ctx context.Context, username string) ([]Transaction, error) {
	key := cache.Key(username, "recent")
	return s.recent.GetOrFill(ctx, key, func(ctx context.Context) ([]Transaction, error) {
		return s.client.Recent(ctx, username, 20)
	})
}

// Get, Update and Delete pass through to the client for the detail/edit
// screens; mutations invalidate the recent list.
func (s *Service) Get(ctx context.Context, username, id string) (Transaction, error) {
	return s.client.Get(ctx, username, id)
}

func (s *Service) Update(ctx context.Context, username, id string, tx Transaction) error {
	if err := s.client.Update(ctx, username, id, tx); err != nil {
		return err
	}
	s.refresh(ctx, username)
	return nil
}

func (s *Service) Delete(ctx context.Context, username, id string) error {
	if err := s.client.Delete(ctx, username, id); err != nil {
		return err
	}
	s.refresh(ctx, username)
	return nil
}

func (s *Service) submitOne(ctx context.Context, username string, payload Transaction) (Receipt, error) {
	start := time.Now()
	created, err := s.client.Create(ctx, username, payload)
	if err != nil {
		return Receipt{ExternalID: payload.ExternalID}, err
	}

	receipt := Receipt{ExternalID: payload.ExternalID, TransactionID: created.ID}
	if !s.verify {
		logger.Info(ctx, "ledger", "submit.ok",
			slog.String("external_id", payload.ExternalID),
			slog.String("tx_type", payload.Type),
			slog.Duration("duration", logger.Took(start)),
		)
		return receipt, nil
	}

	verified, err := s.verifyWrite(ctx, username, payload.ExternalID)
	if err != nil {
		return receipt, err
	}
	receipt.Verified = verified
	logger.Info(ctx, "ledger", "submit.ok",
		slog.String("external_id", payload.ExternalID),
		slog.String("tx_type", payload.Type),
		slog.Bool("verified", verified),
		slog.Duration("duration", logger.Took(start)),
	)
	return receipt, nil
}

// verifyWrite re-queries by idempotency key with bounded retries. A write
// that never becomes visible downgrades the whole submission to failure.
func (s *Service) verifyWrite(ctx context.Context, username, externalID string) (bool, error) {
	for attempt := 1; attempt <= s.verifyAttempts; attempt++ {
		found, err := s.client.FindByExternalID(ctx, username, externalID)
		if err != nil {
			logger.Warn(ctx, "ledger", "verify.attempt_failed",
				slog.String("external_id", externalID),
				slog.Int("attempts", attempt),
				slog.String("err", err.Error()),
			)
		} else if found != nil {
			return true, nil
		}
		if attempt < s.verifyAttempts {
			s.sleep(s.verifyDelay)
		}
	}
	return false, &VerifyError{ExternalID: externalID, Attempts: s.verifyAttempts}
}

func (s *Service) refresh(ctx context.Context, username string) {
	s.recent.Delete(ctx, cache.Key(username, "recent"))
	if s.refresher != nil {
		s.refresher.InvalidateBalance(ctx, username)
	}
}

func (s *Service) buildTransactionPayload(kind flow.Kind, draft flow.TransactionDraft) (Transaction, error) {
	txType := "withdrawal"
	if kind == flow.KindDeposit {
		txType = "deposit"
	}

	if draft.Account.ID == "" || draft.Account.Currency == "" {
		return Transaction{}, &ValidationError{Field: "account", Reason: "not selected"}
	}
	amount, err := parseAmount(draft.Amount)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	if draft.Category.Name == "" {
		return Transaction{}, &ValidationError{Field: "category", Reason: "not selected"}
	}
	if strings.TrimSpace(draft.Counterparty.Name) == "" {
		return Transaction{}, &ValidationError{Field: "counterparty", Reason: "empty name"}
	}

	tx := Transaction{
		Type:         txType,
		Date:         s.resolveDate(draft.Date),
		CategoryName: draft.Category.Name,
		Notes:        draft.Notes,
	}
	if kind == flow.KindDeposit {
		tx.SourceName = draft.Counterparty.Name
		tx.DestinationName = draft.Account.Name
	} else {
		tx.SourceName = draft.Account.Name
		tx.DestinationName = draft.Counterparty.Name
	}

	if draft.Account.Currency == s.settlement {
		tx.Amount = amount.String()
		tx.CurrencyCode = s.settlement
		return tx, nil
	}

	// Foreign account: the settlement figure is the amount, the typed
	// figure travels in the foreign fields.
	converted, err := parseAmount(draft.ConvertedAmount)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "converted_amount", Reason: "conversion not available"}
	}
	tx.Amount = converted.String()
	tx.CurrencyCode = s.settlement
	tx.ForeignAmount = amount.String()
	tx.ForeignCurrencyCode = draft.Account.Currency
	return tx, nil
}

func (s *Service) buildTransferPayload(draft flow.TransferDraft) (Transaction, error) {
	if draft.Source.ID == "" || draft.Source.Currency == "" {
		return Transaction{}, &ValidationError{Field: "source", Reason: "not selected"}
	}
	if draft.Destination.ID == "" || draft.Destination.Currency == "" {
		return Transaction{}, &ValidationError{Field: "destination", Reason: "not selected"}
	}
	srcAmount, err := parseAmount(draft.SourceAmount)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "source_amount", Reason: err.Error()}
	}
	dstAmount, err := parseAmount(draft.DestinationAmount)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "destination_amount", Reason: err.Error()}
	}

	tx := Transaction{
		Type:            "transfer",
		Date:            s.resolveDate(draft.Date),
		Amount:          srcAmount.String(),
		CurrencyCode:    draft.Source.Currency,
		SourceName:      draft.Source.Name,
		DestinationName: draft.Destination.Name,
		Notes:           draft.Notes,
	}
	if draft.Source.Currency != draft.Destination.Currency {
		tx.ForeignAmount = dstAmount.String()
		tx.ForeignCurrencyCode = draft.Destination.Currency
	}
	return tx, nil
}

// feeTag marks fee withdrawals so they are distinguishable from ordinary
// spending in history views.
const feeTag = "transfer-fee"

// feeWrites builds the optional exit/entry fee withdrawals.
func (s *Service) feeWrites(draft flow.TransferDraft, username string, at time.Time) []Transaction {
	var fees []Transaction
	if fee, err := parseAmount(draft.SourceFee); err == nil {
		fees = append(fees, Transaction{
			Type:            "withdrawal",
			Date:            s.resolveDate(draft.Date),
			Amount:          fee.String(),
			CurrencyCode:    draft.Source.Currency,
			SourceName:      draft.Source.Name,
			DestinationName: "Transfer fees",
			CategoryName:    "Fees",
			Tags:            []string{feeTag},
			ExternalID:      ExternalID("fee-out", username, at),
		})
	}
	if fee, err := parseAmount(draft.DestinationFee); err == nil {
		fees = append(fees, Transaction{
			Type:            "withdrawal",
			Date:            s.resolveDate(draft.Date),
			Amount:          fee.String(),
			CurrencyCode:    draft.Destination.Currency,
			SourceName:      draft.Destination.Name,
			DestinationName: "Transfer fees",
			CategoryName:    "Fees",
			Tags:            []string{feeTag},
			ExternalID:      ExternalID("fee-in", username, at),
		})
	}
	return fees
}

func (s *Service) resolveDate(date string) string {
	if strings.TrimSpace(date) != "" {
		return date
	}
	return s.now().UTC().Format(time.RFC3339)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("empty")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number")
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("must be > 0")
	}
	return d, nil
}
