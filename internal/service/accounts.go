package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
	"github.com/shopspring/decimal"
)

const accountNumberAttempts = 5

var accountNumberSpace = big.NewInt(10_000_000_000)

type NewAccount struct {
	UserID         uuid.UUID
	Name           string
	Type           domain.AccountType
	Currency       string
	OpeningBalance decimal.Decimal
	DailyLimit     *decimal.Decimal
	MonthlyLimit   *decimal.Decimal
}

// AccountPatch edits account metadata. Nil fields are left alone; a zero
// limit removes that limit.
type AccountPatch struct {
	Name         *string
	DailyLimit   *decimal.Decimal
	MonthlyLimit *decimal.Decimal
}

func validLimit(d *decimal.Decimal) bool {
	return d == nil || domain.ValidAmount(*d)
}

func (l *Ledger) CreateAccount(ctx context.Context, req NewAccount) (*domain.Account, error) {
	if req.UserID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	if req.Type == "" {
		req.Type = domain.AccountCurrent
	}
	if !req.Type.Valid() {
		return nil, domain.Validation("account type must be one of savings, current, investment")
	}
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.OpeningBalance.IsNegative() || !req.OpeningBalance.Equal(req.OpeningBalance.Truncate(domain.MoneyScale)) {
		return nil, domain.Validation("opening balance must be zero or positive with at most 2 decimal places")
	}
	if !validLimit(req.DailyLimit) || !validLimit(req.MonthlyLimit) {
		return nil, domain.Validation("spend limits must be positive with at most 2 decimal places")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.ToUpper(string(req.Type[:1])) + string(req.Type[1:]) + " Account"
	}

	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		number, err := NewAccountNumber()
		if err != nil {
			return nil, domain.StoreError("generate account number", err)
		}
		now := l.now()
		acct := &domain.Account{
			ID:            uuid.New(),
			UserID:        req.UserID,
			AccountNumber: number,
			Type:          req.Type,
			Name:          name,
			Balance:       req.OpeningBalance,
			Currency:      currency,
			Status:        domain.AccountActive,
			DailyLimit:    req.DailyLimit,
			MonthlyLimit:  req.MonthlyLimit,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = l.store.CreateAccount(ctx, acct)
		if errors.Is(err, domain.ErrDuplicateNumber) {
			continue
		}
		if err != nil {
			return nil, err
		}
		l.log.Info("Account created", "account_id", acct.ID, "user_id", acct.UserID, "type", acct.Type)
		return acct, nil
	}
	return nil, domain.StoreError("create account", fmt.Errorf("no free account number after %d attempts", accountNumberAttempts))
}

// NewAccountNumber returns 10 random decimal digits.
func NewAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%010d", n), nil
}

func (l *Ledger) GetAccount(ctx context.Context, userID, id uuid.UUID) (*domain.Account, error) {
	return l.store.GetAccountForOwner(ctx, id, userID)
}

func (l *Ledger) ListAccounts(ctx context.Context, userID uuid.UUID, status domain.AccountStatus) ([]domain.Account, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validation("status must be one of active, closed, frozen")
	}
	return l.store.ListAccountsForUser(ctx, userID, status)
}

// UpdateAccount edits name and limits of an active account owned by userID.
func (l *Ledger) UpdateAccount(ctx context.Context, userID, id uuid.UUID, patch AccountPatch) (*domain.Account, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, domain.Validation("name cannot be empty")
	}
	for _, lim := range []*decimal.Decimal{patch.DailyLimit, patch.MonthlyLimit} {
		if lim != nil && !lim.IsZero() && !domain.ValidAmount(*lim) {
			return nil, domain.Validation("spend limits must be positive with at most 2 decimal places")
		}
	}

	var updated *domain.Account
	err := l.inTx(ctx, func(tx store.Tx) error {
		a, err := lockOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if a.Status != domain.AccountActive {
			return domain.BusinessRule("only active accounts can be edited")
		}
		if patch.Name != nil {
			a.Name = strings.TrimSpace(*patch.Name)
		}
		a.DailyLimit = applyLimit(a.DailyLimit, patch.DailyLimit)
		a.MonthlyLimit = applyLimit(a.MonthlyLimit, patch.MonthlyLimit)
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyLimit(current, patch *decimal.Decimal) *decimal.Decimal {
	switch {
	case patch == nil:
		return current
	case patch.IsZero():
		return nil
	}
	v := *patch
	return &v
}

// CloseAccount soft-deletes an account. Only an account that is not already
// closed and holds exactly zero can be closed.
func (l *Ledger) CloseAccount(ctx context.Context, userID, id uuid.UUID) (*domain.Account, error) {
	var closed *domain.Account
	err := l.inTx(ctx, func(tx store.Tx) error {
		a, err := lockOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if a.Status == domain.AccountClosed {
			return domain.BusinessRule("account is already closed")
		}
		if !a.Balance.IsZero() {
			return domain.ErrNonZeroBalance
		}
		a.Status = domain.AccountClosed
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		closed = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("Account closed", "account_id", id, "user_id", userID)
	return closed, nil
}

func lockOwned(ctx context.Context, tx store.Tx, id, userID uuid.UUID) (*domain.Account, error) {
	accounts, err := tx.LockAccounts(ctx, id)
	if err != nil {
		return nil, err
	}
	a, ok := accounts[id]
	if !ok || a.UserID != userID {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}
