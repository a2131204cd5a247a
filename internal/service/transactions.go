package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RecordRequest is a single-sided money movement on one account, such as a
// deposit or a card payment.
type RecordRequest struct {
	UserID      uuid.UUID
	AccountID   uuid.UUID
	Type        domain.TransactionType
	Amount      decimal.Decimal
	Description string
	Category    string
}

// RecordTransaction writes the entry as pending, applies it to the balance
// and completes it, all in one atomic unit.
func (l *Ledger) RecordTransaction(ctx context.Context, req RecordRequest) (*domain.Transaction, error) {
	if req.UserID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	if !req.Type.SingleSided() {
		return nil, domain.Validation("transaction type %q cannot be recorded directly", req.Type)
	}
	if !domain.ValidAmount(req.Amount) {
		return nil, domain.ErrInvalidAmount
	}

	var (
		recorded domain.Transaction
		account  domain.Account
	)
	err := l.inTx(ctx, func(tx store.Tx) error {
		a, err := lockOwned(ctx, tx, req.AccountID, req.UserID)
		if err != nil {
			return err
		}
		if a.Status != domain.AccountActive {
			return domain.ErrAccountInactive
		}

		accountID := a.ID
		entry := &domain.Transaction{
			Reference:   newReference(l.now()),
			UserID:      req.UserID,
			Type:        req.Type,
			Amount:      req.Amount,
			Currency:    a.Currency,
			Status:      domain.TxPending,
			Description: describe(req.Description, defaultDescription(req.Type)),
			Category:    strings.TrimSpace(req.Category),
			CreatedAt:   l.now(),
		}

		newBalance := a.Balance.Add(req.Amount)
		if req.Type.IsExpense() {
			if a.Balance.LessThan(req.Amount) {
				return domain.ErrInsufficientBalance
			}
			if err := l.checkLimits(ctx, tx, a, req.Amount); err != nil {
				return err
			}
			entry.SourceAccountID = &accountID
			newBalance = a.Balance.Sub(req.Amount)
		} else {
			entry.DestinationAccountID = &accountID
		}

		id, err := tx.InsertTransaction(ctx, entry)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, a.ID, newBalance, a.Version); err != nil {
			return err
		}
		if err := tx.SetTransactionStatus(ctx, id, domain.TxCompleted); err != nil {
			return err
		}
		entry.Status = domain.TxCompleted
		a.Balance = newBalance
		recorded, account = *entry, *a
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("Transaction recorded", "reference", recorded.Reference, "type", recorded.Type, "amount", recorded.Amount.String())
	l.notifier.NotifyTransaction(recorded, account)
	return &recorded, nil
}

func defaultDescription(t domain.TransactionType) string {
	s := strings.ReplaceAll(string(t), "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func (l *Ledger) GetTransaction(ctx context.Context, userID, id uuid.UUID) (*domain.Transaction, error) {
	return l.store.GetTransaction(ctx, id, userID)
}

// ListTransactions pages through the caller's ledger entries, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, f store.TransactionFilter, p store.Page) ([]domain.Transaction, error) {
	if f.UserID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.Validation("status must be one of pending, completed, failed")
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, domain.Validation("from must not be after to")
	}
	if f.AccountID != nil {
		if _, err := l.store.GetAccountForOwner(ctx, *f.AccountID, f.UserID); err != nil {
			return nil, err
		}
	}
	return l.store.QueryTransactions(ctx, f, ClampPage(p))
}

// ClampPage applies the default and maximum page size.
func ClampPage(p store.Page) store.Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
