package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountSavings    AccountType = "savings"
	AccountCurrent    AccountType = "current"
	AccountInvestment AccountType = "investment"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountSavings, AccountCurrent, AccountInvestment:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountClosed AccountStatus = "closed"
	AccountFrozen AccountStatus = "frozen"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountClosed, AccountFrozen:
		return true
	}
	return false
}

// Account is a user-owned balance holder.
// Version increases by one on every committed mutation and guards
// balance updates against lost writes.
type Account struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"userId"`
	AccountNumber string           `json:"accountNumber"`
	Type          AccountType      `json:"type"`
	Name          string           `json:"name"`
	Balance       decimal.Decimal  `json:"balance"`
	Currency      string           `json:"currency"`
	Status        AccountStatus    `json:"status"`
	DailyLimit    *decimal.Decimal `json:"dailyLimit,omitempty"`
	MonthlyLimit  *decimal.Decimal `json:"monthlyLimit,omitempty"`
	Version       int64            `json:"-"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// MaskedNumber shows only the last four digits of the account number.
func (a *Account) MaskedNumber() string {
	n := a.AccountNumber
	if len(n) <= 4 {
		return n
	}
	masked := make([]byte, len(n)-4)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + n[len(n)-4:]
}

type TransactionType string

const (
	TxTransferOut TransactionType = "transfer_out"
	TxTransferIn  TransactionType = "transfer_in"
	TxDeposit     TransactionType = "deposit"
	TxWithdrawal  TransactionType = "withdrawal"
	TxPayment     TransactionType = "payment"
	TxCardPayment TransactionType = "card_payment"
	TxRefund      TransactionType = "refund"
	TxSalary      TransactionType = "salary"
	TxInterest    TransactionType = "interest"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TxPending, TxCompleted, TxFailed:
		return true
	}
	return false
}

// Transaction is one leg of a money movement. Both legs of a transfer share
// Reference and carry the same source and destination accounts.
type Transaction struct {
	ID                   uuid.UUID         `json:"id"`
	Reference            string            `json:"transactionReference"`
	UserID               uuid.UUID         `json:"userId"`
	SourceAccountID      *uuid.UUID        `json:"sourceAccountId,omitempty"`
	DestinationAccountID *uuid.UUID        `json:"destinationAccountId,omitempty"`
	Type                 TransactionType   `json:"type"`
	Amount               decimal.Decimal   `json:"amount"`
	Currency             string            `json:"currency"`
	Status               TransactionStatus `json:"status"`
	Description          string            `json:"description"`
	Category             string            `json:"category"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// Touches reports whether the entry names the account on either side.
func (t *Transaction) Touches(accountID uuid.UUID) bool {
	return (t.SourceAccountID != nil && *t.SourceAccountID == accountID) ||
		(t.DestinationAccountID != nil && *t.DestinationAccountID == accountID)
}

// TransferRequest is the validated input of a peer-to-peer transfer.
type TransferRequest struct {
	UserID               uuid.UUID
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               decimal.Decimal
	Description          string
	Category             string
}

// TransferResult is what a completed transfer reports back to the caller.
type TransferResult struct {
	Reference string            `json:"transactionReference"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    TransactionStatus `json:"status"`
}

// TransferNotice carries everything the notification path needs after a
// transfer commits.
type TransferNotice struct {
	Result      TransferResult
	SenderID    uuid.UUID
	Source      Account
	Destination Account
	CreatedAt   time.Time
}

// Profile is the display identity of a user. Users themselves are owned by
// the external auth provider.
type Profile struct {
	UserID   uuid.UUID `json:"userId"`
	FullName string    `json:"fullName"`
	Email    string    `json:"email"`
}

type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

func (s NotificationStatus) Valid() bool {
	return s == NotificationUnread || s == NotificationRead
}

// NotificationData is the structured payload attached to a notification.
type NotificationData struct {
	Amount               string    `json:"amount,omitempty"`
	Currency             string    `json:"currency,omitempty"`
	CounterpartyName     string    `json:"counterpartyName,omitempty"`
	CounterpartyAccount  string    `json:"counterpartyAccount,omitempty"`
	TransactionReference string    `json:"transactionReference,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

type Notification struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"userId"`
	Type      string             `json:"type"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Data      json.RawMessage    `json:"data,omitempty"`
	Status    NotificationStatus `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
}
