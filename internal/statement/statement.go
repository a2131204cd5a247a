// Package statement derives an account statement from ledger entries and
// renders it as CSV.
package statement

import (
	"encoding/csv"
	"io"
	"sort"
	"time"

	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type Line struct {
	Date        time.Time
	Description string
	Category    string
	Amount      decimal.Decimal
	Type        domain.TransactionType
	Direction   Direction
	Status      domain.TransactionStatus
	Reference   string
}

type Statement struct {
	AccountName  string
	MaskedNumber string
	Balance      decimal.Decimal
	Currency     string
	GeneratedAt  time.Time
	From         *time.Time
	To           *time.Time
	Lines        []Line
	TotalCredits decimal.Decimal
	TotalDebits  decimal.Decimal
}

func (s *Statement) NetChange() decimal.Decimal {
	return s.TotalCredits.Sub(s.TotalDebits)
}

// DirectionOf classifies t relative to account: income-type entries crediting
// the account and expense-type entries debiting it. Entries that are the
// other party's side of a movement get ok == false.
func DirectionOf(t *domain.Transaction, account domain.Account) (Direction, bool) {
	switch domain.Classify(t.Type) {
	case domain.DirectionIncome:
		if t.DestinationAccountID != nil && *t.DestinationAccountID == account.ID {
			return Credit, true
		}
	case domain.DirectionExpense:
		if t.SourceAccountID != nil && *t.SourceAccountID == account.ID {
			return Debit, true
		}
	}
	return "", false
}

// Build assembles the statement in chronological order. Totals only count
// completed entries.
func Build(account domain.Account, txns []domain.Transaction, from, to *time.Time, now time.Time) *Statement {
	s := &Statement{
		AccountName:  account.Name,
		MaskedNumber: account.MaskedNumber(),
		Balance:      account.Balance,
		Currency:     account.Currency,
		GeneratedAt:  now,
		From:         from,
		To:           to,
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
	}
	for i := range txns {
		t := &txns[i]
		dir, ok := DirectionOf(t, account)
		if !ok {
			continue
		}
		s.Lines = append(s.Lines, Line{
			Date:        t.CreatedAt,
			Description: t.Description,
			Category:    domain.CategoryOrDefault(t.Category),
			Amount:      t.Amount,
			Type:        t.Type,
			Direction:   dir,
			Status:      t.Status,
			Reference:   t.Reference,
		})
		if t.Status != domain.TxCompleted {
			continue
		}
		if dir == Credit {
			s.TotalCredits = s.TotalCredits.Add(t.Amount)
		} else {
			s.TotalDebits = s.TotalDebits.Add(t.Amount)
		}
	}
	sort.SliceStable(s.Lines, func(i, j int) bool {
		return s.Lines[i].Date.Before(s.Lines[j].Date)
	})
	return s
}

func (s *Statement) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	from := "Beginning"
	if s.From != nil {
		from = s.From.Format(dateLayout)
	}
	to := s.GeneratedAt.Format(dateLayout)
	if s.To != nil {
		to = s.To.Format(dateLayout)
	}

	records := [][]string{
		{"Account Statement"},
		{"Account Name", s.AccountName},
		{"Account Number", s.MaskedNumber},
		{"Current Balance", domain.FormatMoney(s.Balance) + " " + s.Currency},
		{"Statement Date", s.GeneratedAt.Format(dateLayout)},
		{"Period", from + " to " + to},
		{},
		{"Date", "Description", "Category", "Amount", "Type", "Direction", "Status", "Reference"},
	}
	for _, l := range s.Lines {
		records = append(records, []string{
			l.Date.Format(dateLayout),
			l.Description,
			l.Category,
			domain.FormatMoney(l.Amount),
			string(l.Type),
			string(l.Direction),
			string(l.Status),
			l.Reference,
		})
	}
	records = append(records,
		[]string{},
		[]string{"Summary"},
		[]string{"Total Credits", domain.FormatMoney(s.TotalCredits)},
		[]string{"Total Debits", domain.FormatMoney(s.TotalDebits)},
		[]string{"Net Change", domain.FormatMoney(s.NetChange())},
	)

	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}
