package statement

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/shopspring/decimal"
)

func entry(tt domain.TransactionType, src, dst *uuid.UUID, amount string, status domain.TransactionStatus, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID: uuid.New(), Reference: "REF-" + string(tt), Type: tt,
		SourceAccountID: src, DestinationAccountID: dst,
		Amount: decimal.RequireFromString(amount), Currency: "USD",
		Status: status, Description: string(tt), CreatedAt: at,
	}
}

func TestBuildClassifiesAndTotals(t *testing.T) {
	acct := domain.Account{ID: uuid.New(), Name: "Main", AccountNumber: "1234567890", Balance: decimal.RequireFromString("80"), Currency: "USD"}
	other := uuid.New()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	txns := []domain.Transaction{
		entry(domain.TxPayment, &acct.ID, nil, "20", domain.TxCompleted, base.Add(48*time.Hour)),
		entry(domain.TxDeposit, nil, &acct.ID, "100", domain.TxCompleted, base),
		entry(domain.TxWithdrawal, &acct.ID, nil, "5", domain.TxPending, base.Add(72*time.Hour)),
		// The counterparty's credit leg does not belong on this statement.
		entry(domain.TxTransferIn, &acct.ID, &other, "7", domain.TxCompleted, base.Add(24*time.Hour)),
	}
	s := Build(acct, txns, nil, nil, base.Add(96*time.Hour))

	if len(s.Lines) != 3 {
		t.Fatalf("lines=%d want=3", len(s.Lines))
	}
	if s.Lines[0].Type != domain.TxDeposit || s.Lines[0].Direction != Credit {
		t.Fatalf("first line=%+v", s.Lines[0])
	}
	if s.Lines[1].Direction != Debit || s.Lines[1].Category != domain.DefaultCategory {
		t.Fatalf("second line=%+v", s.Lines[1])
	}
	if !s.TotalCredits.Equal(decimal.RequireFromString("100")) || !s.TotalDebits.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("credits=%s debits=%s", s.TotalCredits, s.TotalDebits)
	}
	if !s.NetChange().Equal(decimal.RequireFromString("80")) {
		t.Fatalf("net=%s", s.NetChange())
	}
	if s.MaskedNumber != "******7890" {
		t.Fatalf("masked=%q", s.MaskedNumber)
	}
}

func TestWriteCSV(t *testing.T) {
	acct := domain.Account{ID: uuid.New(), Name: "Main, Joint", AccountNumber: "1234567890", Balance: decimal.RequireFromString("95.5"), Currency: "USD"}
	at := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txns := []domain.Transaction{entry(domain.TxSalary, nil, &acct.ID, "95.5", domain.TxCompleted, at)}
	txns[0].Category = "Payroll"

	var buf bytes.Buffer
	if err := Build(acct, txns, &from, nil, at).WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Account Statement",
		`Account Name,"Main, Joint"`,
		"Account Number,******7890",
		"Current Balance,95.50 USD",
		"Period,2024-03-01 to 2024-03-02",
		"Date,Description,Category,Amount,Type,Direction,Status,Reference",
		"2024-03-02,salary,Payroll,95.50,salary,credit,completed,REF-salary",
		"Total Credits,95.50",
		"Total Debits,0.00",
		"Net Change,95.50",
	} {
		if !strings.Contains(out, want+"\n") {
			t.Fatalf("csv missing %q:\n%s", want, out)
		}
	}

	r := csv.NewReader(strings.NewReader(out))
	r.FieldsPerRecord = -1
	if _, err := r.ReadAll(); err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
}
