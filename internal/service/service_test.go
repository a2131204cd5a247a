package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingNotifier struct {
	mu        sync.Mutex
	transfers []domain.TransferNotice
	txns      []domain.Transaction
}

func (r *recordingNotifier) NotifyTransfer(n domain.TransferNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, n)
}

func (r *recordingNotifier) NotifyTransaction(t domain.Transaction, _ domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns = append(r.txns, t)
}

// faultyStore counts transactions and lets a test fail individual writes.
type faultyStore struct {
	*store.Memory
	txCalls atomic.Int32
	fail    func(op string) error
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	f.txCalls.Add(1)
	return f.Memory.WithTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, fail: f.fail})
	})
}

type faultyTx struct {
	store.Tx
	fail func(op string) error
}

func (t *faultyTx) check(op string) error {
	if t.fail == nil {
		return nil
	}
	return t.fail(op)
}

func (t *faultyTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) (uuid.UUID, error) {
	if err := t.check("insert"); err != nil {
		return uuid.Nil, err
	}
	return t.Tx.InsertTransaction(ctx, txn)
}

func (t *faultyTx) UpdateBalance(ctx context.Context, id uuid.UUID, b decimal.Decimal, v int64) error {
	if err := t.check("balance"); err != nil {
		return err
	}
	return t.Tx.UpdateBalance(ctx, id, b, v)
}

type fixture struct {
	store  *faultyStore
	ledger *Ledger
	notes  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := &faultyStore{Memory: store.NewMemory()}
	notes := &recordingNotifier{}
	l := NewLedger(fs,
		WithNotifier(notes),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &fixture{store: fs, ledger: l, notes: notes}
}

func (f *fixture) open(t *testing.T, user uuid.UUID, balance string) *domain.Account {
	t.Helper()
	a, err := f.ledger.CreateAccount(context.Background(), NewAccount{
		UserID:         user,
		Name:           "Acct",
		OpeningBalance: dec(balance),
	})
	if err != nil {
		t.Fatalf("CreateAccount err=%v", err)
	}
	return a
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount err=%v", err)
	}
	return a.Balance
}

func (f *fixture) entries(t *testing.T, users ...uuid.UUID) []domain.Transaction {
	t.Helper()
	var out []domain.Transaction
	for _, u := range users {
		txns, err := f.store.QueryTransactions(context.Background(), store.TransactionFilter{UserID: u}, store.Page{})
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, txns...)
	}
	return out
}

func TestNewLedgerDefaults(t *testing.T) {
	l := NewLedger(store.NewMemory(), WithRetries(0))
	if l.retries != 3 {
		t.Fatalf("retries=%d want=3", l.retries)
	}
	if _, ok := l.notifier.(noopNotifier); !ok {
		t.Fatalf("default notifier should be a no-op")
	}
}

func TestAuditReport(t *testing.T) {
	clean := &AuditReport{}
	if !clean.Clean() || clean.Err() != nil {
		t.Fatalf("empty report should be clean")
	}
	dirty := &AuditReport{UnbalancedTransfers: []string{"TXN1"}}
	if dirty.Clean() || domain.KindOf(dirty.Err()) != domain.KindPartialFailure {
		t.Fatalf("dirty report err=%v", dirty.Err())
	}
}

func TestAuditAfterTransfers(t *testing.T) {
	f := newFixture(t)
	alice, bob := uuid.New(), uuid.New()
	a := f.open(t, alice, "50")
	b := f.open(t, bob, "50")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := f.ledger.Transfer(ctx, domain.TransferRequest{
			UserID: alice, SourceAccountID: a.ID, DestinationAccountID: b.ID, Amount: dec("5"),
		}); err != nil {
			t.Fatal(err)
		}
	}
	report, err := Audit(ctx, f.store)
	if err != nil || !report.Clean() {
		t.Fatalf("report=%+v err=%v", report, err)
	}
}

func TestErrorsAreNotSwallowed(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.store.fail = func(op string) error { return domain.StoreError("insert transaction", boom) }
	user := uuid.New()
	a := f.open(t, user, "10")

	_, err := f.ledger.RecordTransaction(context.Background(), RecordRequest{
		UserID: user, AccountID: a.ID, Type: domain.TxDeposit, Amount: dec("1"),
	})
	if !errors.Is(err, boom) || domain.KindOf(err) != domain.KindStore {
		t.Fatalf("err=%v want store error wrapping cause", err)
	}
}
