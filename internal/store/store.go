// Package store is the Account Ledger Store: the system of record for
// accounts, ledger entries, profiles and notifications.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionFilter scopes a ledger query. UserID is always required.
// From and To are inclusive.
type TransactionFilter struct {
	UserID    uuid.UUID
	AccountID *uuid.UUID
	From      *time.Time
	To        *time.Time
	Status    domain.TransactionStatus
	Type      domain.TransactionType
}

// Page is offset pagination. Limit 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

type AccountReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetAccountForOwner(ctx context.Context, id, userID uuid.UUID) (*domain.Account, error)
	// ListAccountsForUser orders by creation time, newest first. An empty
	// status lists every account.
	ListAccountsForUser(ctx context.Context, userID uuid.UUID, status domain.AccountStatus) ([]domain.Account, error)
}

type TransactionReader interface {
	GetTransaction(ctx context.Context, id, userID uuid.UUID) (*domain.Transaction, error)
	// QueryTransactions returns matching entries newest first.
	QueryTransactions(ctx context.Context, f TransactionFilter, p Page) ([]domain.Transaction, error)
}

type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, status domain.NotificationStatus, limit int) ([]domain.Notification, error)
	SetNotificationStatus(ctx context.Context, id, userID uuid.UUID, status domain.NotificationStatus) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteNotification(ctx context.Context, id, userID uuid.UUID) error
}

// Auditor exposes the scans used to verify ledger invariants.
type Auditor interface {
	// UnbalancedTransfers lists references whose legs are not exactly one
	// transfer_out plus one transfer_in of equal amount and currency.
	UnbalancedTransfers(ctx context.Context) ([]string, error)
	NegativeBalances(ctx context.Context) ([]uuid.UUID, error)
}

// Tx is one atomic unit of work. Nothing written through it is visible to
// others until the enclosing WithTx returns nil.
type Tx interface {
	// LockAccounts loads and locks the given accounts. Ids that do not
	// exist are absent from the result.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error)
	// UpdateBalance is a compare-and-set on the account version. It returns
	// domain.ErrVersionConflict when expectedVersion is stale.
	UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error
	// UpdateAccount writes name, limits and status under the same
	// compare-and-set rule and advances a.Version on success.
	UpdateAccount(ctx context.Context, a *domain.Account) error
	InsertTransaction(ctx context.Context, t *domain.Transaction) (uuid.UUID, error)
	// SetTransactionStatus moves a pending entry to its final status. Entries
	// that are already completed or failed never change again and yield
	// domain.ErrEntryFinalized.
	SetTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error
	// SumDebits totals completed expense entries drawn from the account
	// since the given instant.
	SumDebits(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error)
}

type Store interface {
	AccountReader
	TransactionReader
	ProfileReader
	NotificationStore
	Auditor

	// CreateAccount inserts a new account. A clashing account number
	// yields domain.ErrDuplicateNumber.
	CreateAccount(ctx context.Context, a *domain.Account) error
	UpsertProfile(ctx context.Context, p *domain.Profile) error
	// WithTx runs fn atomically: all of its writes commit or none do.
	WithTx(ctx context.Context, fn func(Tx) error) error
	Close()
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
