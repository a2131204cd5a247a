package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
	"github.com/shopspring/decimal"
)

const transferCategory = "Transfer"

// Transfer moves req.Amount from the caller's source account to the
// destination account. Both ledger entries and both balance updates commit
// in one store transaction; notification happens after commit and cannot
// fail the transfer.
//
// Transfer is not idempotent: calling it twice moves the money twice.
func (l *Ledger) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	if req.UserID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	if !domain.ValidAmount(req.Amount) {
		transfersTotal.WithLabelValues("rejected").Inc()
		return nil, domain.ErrInvalidAmount
	}
	if req.SourceAccountID == req.DestinationAccountID {
		transfersTotal.WithLabelValues("rejected").Inc()
		return nil, domain.ErrSameAccount
	}

	var notice *domain.TransferNotice
	err := l.inTx(ctx, func(tx store.Tx) error {
		n, err := l.executeTransfer(ctx, tx, req)
		if err != nil {
			return err
		}
		notice = n
		return nil
	})
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindValidation, domain.KindNotFound, domain.KindBusinessRule:
			transfersTotal.WithLabelValues("rejected").Inc()
			l.log.Info("Transfer rejected", "user_id", req.UserID, "error", err)
		default:
			transfersTotal.WithLabelValues("failed").Inc()
			l.log.Error("Transfer failed", "user_id", req.UserID,
				"source", req.SourceAccountID, "destination", req.DestinationAccountID, "error", err)
		}
		return nil, err
	}

	transfersTotal.WithLabelValues("completed").Inc()
	l.log.Info("Transfer completed", "reference", notice.Result.Reference, "amount", notice.Result.Amount.String())
	l.notifier.NotifyTransfer(*notice)
	return &notice.Result, nil
}

// executeTransfer checks the preconditions in order and, only when all of
// them hold, performs the four writes.
func (l *Ledger) executeTransfer(ctx context.Context, tx store.Tx, req domain.TransferRequest) (*domain.TransferNotice, error) {
	accounts, err := tx.LockAccounts(ctx, req.SourceAccountID, req.DestinationAccountID)
	if err != nil {
		return nil, err
	}

	source, ok := accounts[req.SourceAccountID]
	if !ok || source.UserID != req.UserID {
		return nil, domain.ErrAccountNotFound
	}
	if source.Status != domain.AccountActive {
		return nil, domain.ErrAccountInactive
	}
	if source.Balance.LessThan(req.Amount) {
		return nil, domain.ErrInsufficientBalance
	}
	dest, ok := accounts[req.DestinationAccountID]
	if !ok {
		return nil, domain.ErrDestinationNotFound
	}
	if dest.Status != domain.AccountActive {
		return nil, domain.ErrDestinationInactive
	}
	if source.Currency != dest.Currency {
		return nil, domain.BusinessRule("cannot transfer between %s and %s accounts", source.Currency, dest.Currency)
	}
	if err := l.checkLimits(ctx, tx, source, req.Amount); err != nil {
		return nil, err
	}

	now := l.now()
	ref := newReference(now)
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = transferCategory
	}
	srcID, dstID := source.ID, dest.ID

	out := &domain.Transaction{
		Reference:            ref,
		UserID:               source.UserID,
		SourceAccountID:      &srcID,
		DestinationAccountID: &dstID,
		Type:                 domain.TxTransferOut,
		Amount:               req.Amount,
		Currency:             source.Currency,
		Status:               domain.TxCompleted,
		Description:          describe(req.Description, "Transfer to "+dest.Name),
		Category:             category,
		CreatedAt:            now,
	}
	in := *out
	in.ID = uuid.Nil
	in.UserID = dest.UserID
	in.Type = domain.TxTransferIn
	in.Description = describe(req.Description, "Transfer from "+source.Name)

	if _, err := tx.InsertTransaction(ctx, out); err != nil {
		return nil, fmt.Errorf("transfer %s rolled back at debit entry: %w", ref, err)
	}
	if _, err := tx.InsertTransaction(ctx, &in); err != nil {
		return nil, fmt.Errorf("transfer %s rolled back at credit entry: %w", ref, err)
	}
	if err := tx.UpdateBalance(ctx, source.ID, source.Balance.Sub(req.Amount), source.Version); err != nil {
		return nil, fmt.Errorf("transfer %s rolled back at debit balance: %w", ref, err)
	}
	if err := tx.UpdateBalance(ctx, dest.ID, dest.Balance.Add(req.Amount), dest.Version); err != nil {
		return nil, fmt.Errorf("transfer %s rolled back at credit balance: %w", ref, err)
	}

	return &domain.TransferNotice{
		Result: domain.TransferResult{
			Reference: ref,
			Amount:    req.Amount,
			Status:    domain.TxCompleted,
		},
		SenderID:    req.UserID,
		Source:      *source,
		Destination: *dest,
		CreatedAt:   now,
	}, nil
}

// checkLimits enforces the optional daily and monthly spend caps of the
// debited account, measured from the start of the UTC day and month.
func (l *Ledger) checkLimits(ctx context.Context, tx store.Tx, a *domain.Account, amount decimal.Decimal) error {
	now := l.now().UTC()
	if a.DailyLimit != nil {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		spent, err := tx.SumDebits(ctx, a.ID, dayStart)
		if err != nil {
			return err
		}
		if spent.Add(amount).GreaterThan(*a.DailyLimit) {
			return domain.ErrDailyLimit
		}
	}
	if a.MonthlyLimit != nil {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		spent, err := tx.SumDebits(ctx, a.ID, monthStart)
		if err != nil {
			return err
		}
		if spent.Add(amount).GreaterThan(*a.MonthlyLimit) {
			return domain.ErrMonthlyLimit
		}
	}
	return nil
}

// newReference builds the external reference shared by both legs.
func newReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TXN%d%s", now.UnixMilli(), suffix)
}

func describe(given, fallback string) string {
	if s := strings.TrimSpace(given); s != "" {
		return s
	}
	return fallback
}
