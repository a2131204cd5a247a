package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Store. Every WithTx holds the writer lock for its
// whole duration, so mutations are serialized; writes are staged and only
// applied when fn succeeds.
type Memory struct {
	mu            sync.RWMutex
	accounts      map[uuid.UUID]*domain.Account
	numbers       map[string]uuid.UUID
	txns          []*domain.Transaction
	txnIndex      map[uuid.UUID]int
	profiles      map[uuid.UUID]*domain.Profile
	notifications []*domain.Notification
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[uuid.UUID]*domain.Account),
		numbers:  make(map[string]uuid.UUID),
		txnIndex: make(map[uuid.UUID]int),
		profiles: make(map[uuid.UUID]*domain.Profile),
	}
}

func (m *Memory) Close() {}

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	if a.DailyLimit != nil {
		d := *a.DailyLimit
		cp.DailyLimit = &d
	}
	if a.MonthlyLimit != nil {
		d := *a.MonthlyLimit
		cp.MonthlyLimit = &d
	}
	return &cp
}

func (m *Memory) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (m *Memory) GetAccountForOwner(ctx context.Context, id, userID uuid.UUID) (*domain.Account, error) {
	a, err := m.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func (m *Memory) ListAccountsForUser(ctx context.Context, userID uuid.UUID, status domain.AccountStatus) ([]domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Account{}
	for _, a := range m.accounts {
		if a.UserID != userID || (status != "" && a.Status != status) {
			continue
		}
		out = append(out, *copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CreateAccount(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.numbers[a.AccountNumber]; taken {
		return domain.ErrDuplicateNumber
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	a.Version = 1
	m.accounts[a.ID] = copyAccount(a)
	m.numbers[a.AccountNumber] = a.ID
	return nil
}

func (m *Memory) GetTransaction(ctx context.Context, id, userID uuid.UUID) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.txnIndex[id]
	if !ok || m.txns[i].UserID != userID {
		return nil, domain.ErrTransactionNotFound
	}
	t := *m.txns[i]
	return &t, nil
}

func matches(t *domain.Transaction, f TransactionFilter) bool {
	if t.UserID != f.UserID {
		return false
	}
	if f.AccountID != nil && !t.Touches(*f.AccountID) {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.CreatedAt.After(*f.To) {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	return true
}

func (m *Memory) QueryTransactions(ctx context.Context, f TransactionFilter, p Page) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Transaction{}
	// txns is in insertion order; walk backwards so equal timestamps still
	// come out newest first.
	for i := len(m.txns) - 1; i >= 0; i-- {
		if matches(m.txns[i], f) {
			out = append(out, *m.txns[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if p.Offset >= len(out) {
		return []domain.Transaction{}, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && p.Limit < len(out) {
		out = out[:p.Limit]
	}
	return out, nil
}

func (m *Memory) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *Memory) InsertNotification(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Status == "" {
		n.Status = domain.NotificationUnread
	}
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *Memory) ListNotifications(ctx context.Context, userID uuid.UUID, status domain.NotificationStatus, limit int) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Notification{}
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.UserID != userID || (status != "" && n.Status != status) {
			continue
		}
		out = append(out, *n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) findNotification(id, userID uuid.UUID) int {
	for i, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			return i
		}
	}
	return -1
}

func (m *Memory) SetNotificationStatus(ctx context.Context, id, userID uuid.UUID, status domain.NotificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findNotification(id, userID)
	if i < 0 {
		return domain.ErrNotificationNotFound
	}
	m.notifications[i].Status = status
	return nil
}

func (m *Memory) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, nt := range m.notifications {
		if nt.UserID == userID && nt.Status == domain.NotificationUnread {
			nt.Status = domain.NotificationRead
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteNotification(ctx context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findNotification(id, userID)
	if i < 0 {
		return domain.ErrNotificationNotFound
	}
	m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
	return nil
}

func (m *Memory) UnbalancedTransfers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	legs := make(map[string][]*domain.Transaction)
	var refs []string
	for _, t := range m.txns {
		if t.Type != domain.TxTransferOut && t.Type != domain.TxTransferIn {
			continue
		}
		if _, seen := legs[t.Reference]; !seen {
			refs = append(refs, t.Reference)
		}
		legs[t.Reference] = append(legs[t.Reference], t)
	}
	out := []string{}
	for _, ref := range refs {
		if !balancedPair(legs[ref]) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func balancedPair(legs []*domain.Transaction) bool {
	if len(legs) != 2 {
		return false
	}
	a, b := legs[0], legs[1]
	if a.Type == b.Type {
		return false
	}
	return a.Amount.Equal(b.Amount) && a.Currency == b.Currency
}

func (m *Memory) NegativeBalances(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []uuid.UUID{}
	for id, a := range m.accounts {
		if a.Balance.IsNegative() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		m:        m,
		accounts: make(map[uuid.UUID]*domain.Account),
		statuses: make(map[uuid.UUID]domain.TransactionStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes against a Memory that is already write-locked.
type memTx struct {
	m        *Memory
	accounts map[uuid.UUID]*domain.Account
	inserted []*domain.Transaction
	statuses map[uuid.UUID]domain.TransactionStatus
}

func (tx *memTx) account(id uuid.UUID) (*domain.Account, bool) {
	if a, ok := tx.accounts[id]; ok {
		return a, true
	}
	a, ok := tx.m.accounts[id]
	if !ok {
		return nil, false
	}
	cp := copyAccount(a)
	tx.accounts[id] = cp
	return cp, true
}

func (tx *memTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	out := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range ids {
		if a, ok := tx.account(id); ok {
			out[id] = copyAccount(a)
		}
	}
	return out, nil
}

func (tx *memTx) UpdateBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
	a, ok := tx.account(id)
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	a.Balance = newBalance
	a.Version++
	a.UpdatedAt = time.Now()
	return nil
}

func (tx *memTx) UpdateAccount(ctx context.Context, upd *domain.Account) error {
	a, ok := tx.account(upd.ID)
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.Version != upd.Version {
		return domain.ErrVersionConflict
	}
	a.Name = upd.Name
	a.DailyLimit = upd.DailyLimit
	a.MonthlyLimit = upd.MonthlyLimit
	a.Status = upd.Status
	a.Version++
	a.UpdatedAt = time.Now()
	upd.Version = a.Version
	upd.UpdatedAt = a.UpdatedAt
	return nil
}

func (tx *memTx) InsertTransaction(ctx context.Context, t *domain.Transaction) (uuid.UUID, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	tx.inserted = append(tx.inserted, &cp)
	return t.ID, nil
}

func (tx *memTx) SetTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	for _, t := range tx.inserted {
		if t.ID == id {
			if t.Status != domain.TxPending {
				return domain.ErrEntryFinalized
			}
			t.Status = status
			return nil
		}
	}
	i, ok := tx.m.txnIndex[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	current, staged := tx.statuses[id]
	if !staged {
		current = tx.m.txns[i].Status
	}
	if current != domain.TxPending {
		return domain.ErrEntryFinalized
	}
	tx.statuses[id] = status
	return nil
}

func (tx *memTx) SumDebits(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	add := func(t *domain.Transaction, status domain.TransactionStatus) {
		if status != domain.TxCompleted || !t.Type.IsExpense() || t.CreatedAt.Before(since) {
			return
		}
		if t.SourceAccountID != nil && *t.SourceAccountID == accountID {
			sum = sum.Add(t.Amount)
		}
	}
	for _, t := range tx.m.txns {
		status := t.Status
		if s, ok := tx.statuses[t.ID]; ok {
			status = s
		}
		add(t, status)
	}
	for _, t := range tx.inserted {
		add(t, t.Status)
	}
	return sum, nil
}

func (tx *memTx) commit() {
	m := tx.m
	for id, a := range tx.accounts {
		m.accounts[id] = a
	}
	for id, s := range tx.statuses {
		m.txns[m.txnIndex[id]].Status = s
	}
	for _, t := range tx.inserted {
		m.txnIndex[t.ID] = len(m.txns)
		m.txns = append(m.txns, t)
	}
}
