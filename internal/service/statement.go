package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/statement"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

// Statement gathers the caller's entries on one of their accounts for the
// optional date range.
func (l *Ledger) Statement(ctx context.Context, userID, accountID uuid.UUID, from, to *time.Time) (*statement.Statement, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, domain.Validation("from must not be after to")
	}
	account, err := l.store.GetAccountForOwner(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	txns, err := l.store.QueryTransactions(ctx, store.TransactionFilter{
		UserID:    userID,
		AccountID: &accountID,
		From:      from,
		To:        to,
	}, store.Page{})
	if err != nil {
		return nil, err
	}
	return statement.Build(*account, txns, from, to, l.now()), nil
}
