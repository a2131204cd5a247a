package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
	"github.com/shopspring/decimal"
)

func TestCreateAccountDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	a, err := f.ledger.CreateAccount(ctx, NewAccount{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	if a.Type != domain.AccountCurrent || a.Currency != "USD" || a.Name != "Current Account" {
		t.Fatalf("defaults=%+v", a)
	}
	if len(a.AccountNumber) != 10 || strings.Trim(a.AccountNumber, "0123456789") != "" {
		t.Fatalf("account number=%q", a.AccountNumber)
	}
	if !a.Balance.IsZero() || a.Status != domain.AccountActive {
		t.Fatalf("new account=%+v", a)
	}

	bad := []NewAccount{
		{UserID: user, Type: "checking"},
		{UserID: user, Currency: "DOLLARS"},
		{UserID: user, OpeningBalance: dec("-1")},
		{UserID: user, OpeningBalance: dec("1.001")},
	}
	for _, req := range bad {
		if _, err := f.ledger.CreateAccount(ctx, req); domain.KindOf(err) != domain.KindValidation {
			t.Fatalf("CreateAccount(%+v) err=%v want validation", req, err)
		}
	}
	if _, err := f.ledger.CreateAccount(ctx, NewAccount{}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("anonymous create err=%v", err)
	}
}

func TestOpeningBalanceWritesNoEntry(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	f.open(t, user, "250")
	if n := len(f.entries(t, user)); n != 0 {
		t.Fatalf("entries=%d want=0", n)
	}
}

func TestListAccountsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.ledger.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	first := f.open(t, user, "0")
	second := f.open(t, user, "0")
	f.open(t, uuid.New(), "0")

	list, err := f.ledger.ListAccounts(ctx, user, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list=%v", list)
	}
	if _, err := f.ledger.CloseAccount(ctx, user, first.ID); err != nil {
		t.Fatal(err)
	}
	active, _ := f.ledger.ListAccounts(ctx, user, domain.AccountActive)
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("active=%v", active)
	}
	if _, err := f.ledger.ListAccounts(ctx, user, "dormant"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("bad status err=%v", err)
	}
}

func TestUpdateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	a := f.open(t, user, "10")

	name := "  Holiday Fund "
	limit := dec("75")
	got, err := f.ledger.UpdateAccount(ctx, user, a.ID, AccountPatch{Name: &name, DailyLimit: &limit})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Holiday Fund" || got.DailyLimit == nil || !got.DailyLimit.Equal(limit) {
		t.Fatalf("updated=%+v", got)
	}
	if !got.Balance.Equal(dec("10")) || got.AccountNumber != a.AccountNumber {
		t.Fatalf("immutable fields changed")
	}

	zero := decimal.Zero
	got, err = f.ledger.UpdateAccount(ctx, user, a.ID, AccountPatch{DailyLimit: &zero})
	if err != nil || got.DailyLimit != nil || got.Name != "Holiday Fund" {
		t.Fatalf("clear limit=%+v err=%v", got, err)
	}

	blank := " "
	if _, err := f.ledger.UpdateAccount(ctx, user, a.ID, AccountPatch{Name: &blank}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("blank name err=%v", err)
	}
	if _, err := f.ledger.UpdateAccount(ctx, uuid.New(), a.ID, AccountPatch{Name: &name}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("stranger update err=%v", err)
	}
}

func TestCloseAccountRequiresZeroBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	a := f.open(t, user, "0.01")

	if _, err := f.ledger.CloseAccount(ctx, user, a.ID); !errors.Is(err, domain.ErrNonZeroBalance) || domain.KindOf(err) != domain.KindBusinessRule {
		t.Fatalf("close with 0.01 err=%v", err)
	}
	if _, err := f.ledger.RecordTransaction(ctx, RecordRequest{
		UserID: user, AccountID: a.ID, Type: domain.TxWithdrawal, Amount: dec("0.01"),
	}); err != nil {
		t.Fatal(err)
	}
	closed, err := f.ledger.CloseAccount(ctx, user, a.ID)
	if err != nil {
		t.Fatalf("close at zero err=%v", err)
	}
	if closed.Status != domain.AccountClosed {
		t.Fatalf("status=%s", closed.Status)
	}
	if _, err := f.ledger.CloseAccount(ctx, user, a.ID); domain.KindOf(err) != domain.KindBusinessRule {
		t.Fatalf("second close err=%v", err)
	}
	name := "x"
	if _, err := f.ledger.UpdateAccount(ctx, user, a.ID, AccountPatch{Name: &name}); domain.KindOf(err) != domain.KindBusinessRule {
		t.Fatalf("edit closed account err=%v", err)
	}
}

func TestRecordTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	a := f.open(t, user, "20")

	dep, err := f.ledger.RecordTransaction(ctx, RecordRequest{
		UserID: user, AccountID: a.ID, Type: domain.TxSalary, Amount: dec("100"), Category: "Payroll",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dep.Status != domain.TxCompleted || dep.DestinationAccountID == nil || *dep.DestinationAccountID != a.ID || dep.SourceAccountID != nil {
		t.Fatalf("salary entry=%+v", dep)
	}
	if dep.Description != "Salary" {
		t.Fatalf("default description=%q", dep.Description)
	}
	stored, err := f.ledger.GetTransaction(ctx, user, dep.ID)
	if err != nil || stored.Status != domain.TxCompleted {
		t.Fatalf("stored=%+v err=%v", stored, err)
	}

	pay, err := f.ledger.RecordTransaction(ctx, RecordRequest{
		UserID: user, AccountID: a.ID, Type: domain.TxCardPayment, Amount: dec("70"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if pay.SourceAccountID == nil || *pay.SourceAccountID != a.ID {
		t.Fatalf("payment entry=%+v", pay)
	}
	if got := f.balance(t, a.ID); !got.Equal(dec("50")) {
		t.Fatalf("balance=%s want=50", got)
	}

	if _, err := f.ledger.RecordTransaction(ctx, RecordRequest{
		UserID: user, AccountID: a.ID, Type: domain.TxWithdrawal, Amount: dec("50.01"),
	}); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("overdraw err=%v", err)
	}
	if _, err := f.ledger.RecordTransaction(ctx, RecordRequest{
		UserID: user, AccountID: a.ID, Type: domain.TxTransferIn, Amount: dec("1"),
	}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("transfer leg err=%v", err)
	}
	if _, err := f.ledger.GetTransaction(ctx, uuid.New(), dep.ID); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("stranger read err=%v", err)
	}
	if len(f.notes.txns) != 2 {
		t.Fatalf("notifications=%d want=2", len(f.notes.txns))
	}
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	a := f.open(t, user, "0")
	for i := 0; i < 3; i++ {
		if _, err := f.ledger.RecordTransaction(ctx, RecordRequest{
			UserID: user, AccountID: a.ID, Type: domain.TxDeposit, Amount: dec("1"),
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := f.ledger.ListTransactions(ctx, store.TransactionFilter{UserID: user, AccountID: &a.ID}, store.Page{Limit: 2})
	if err != nil || len(got) != 2 {
		t.Fatalf("page len=%d err=%v", len(got), err)
	}
	other := uuid.New()
	if _, err := f.ledger.ListTransactions(ctx, store.TransactionFilter{UserID: other, AccountID: &a.ID}, store.Page{}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("foreign account err=%v", err)
	}
	if _, err := f.ledger.ListTransactions(ctx, store.TransactionFilter{UserID: user, Status: "settled"}, store.Page{}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("bad status err=%v", err)
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct{ in, want store.Page }{
		{store.Page{}, store.Page{Limit: DefaultPageSize}},
		{store.Page{Limit: 500, Offset: -4}, store.Page{Limit: MaxPageSize}},
		{store.Page{Limit: 5, Offset: 10}, store.Page{Limit: 5, Offset: 10}},
	}
	for _, c := range cases {
		if got := ClampPage(c.in); got != c.want {
			t.Fatalf("ClampPage(%+v)=%+v want=%+v", c.in, got, c.want)
		}
	}
}

func TestStatementUsesOwnLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	a := f.open(t, alice, "100")
	b := f.open(t, bob, "0")
	if _, err := f.ledger.Transfer(ctx, domain.TransferRequest{
		UserID: alice, SourceAccountID: a.ID, DestinationAccountID: b.ID, Amount: dec("30"),
	}); err != nil {
		t.Fatal(err)
	}

	stmt, err := f.ledger.Statement(ctx, alice, a.ID, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stmt.Lines) != 1 || stmt.Lines[0].Type != domain.TxTransferOut {
		t.Fatalf("alice lines=%+v", stmt.Lines)
	}
	if !stmt.TotalDebits.Equal(dec("30")) || !stmt.TotalCredits.IsZero() {
		t.Fatalf("alice totals credits=%s debits=%s", stmt.TotalCredits, stmt.TotalDebits)
	}

	stmt, err = f.ledger.Statement(ctx, bob, b.ID, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stmt.Lines) != 1 || !stmt.TotalCredits.Equal(dec("30")) {
		t.Fatalf("bob lines=%+v", stmt.Lines)
	}

	if _, err := f.ledger.Statement(ctx, bob, a.ID, nil, nil); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("foreign statement err=%v", err)
	}
}
