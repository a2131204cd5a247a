// Package analytics is the Analytics Aggregator. Every call recomputes its
// result from the ledger; nothing is cached or materialized.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/store"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Aggregator struct {
	reader store.TransactionReader
	now    func() time.Time
}

// NewAggregator uses time.Now when now is nil.
func NewAggregator(r store.TransactionReader, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{reader: r, now: now}
}

type Totals struct {
	TotalSpent       decimal.Decimal `json:"totalSpent"`
	TotalIncome      decimal.Decimal `json:"totalIncome"`
	NetChange        decimal.Decimal `json:"netChange"`
	TransactionCount int             `json:"transactionCount"`
}

type Comparison struct {
	Totals
	SpentChange  decimal.Decimal `json:"spentChangePercent"`
	IncomeChange decimal.Decimal `json:"incomeChangePercent"`
}

type Summary struct {
	Period domain.Period `json:"period"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Totals
	// TopCategory is empty when the window has no expenses.
	TopCategory    string     `json:"topCategory"`
	PreviousPeriod Comparison `json:"previousPeriod"`
}

type CategoryShare struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

type Breakdown struct {
	Period        domain.Period   `json:"period"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	Expenses      []CategoryShare `json:"expenses"`
	Income        []CategoryShare `json:"income"`
}

type Point struct {
	Bucket string          `json:"bucket"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

type Series struct {
	Period domain.Period `json:"period"`
	Points []Point       `json:"points"`
}

// completed loads every completed entry owned by userID inside w.
func (a *Aggregator) completed(ctx context.Context, userID uuid.UUID, w domain.Window) ([]domain.Transaction, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	return a.reader.QueryTransactions(ctx, store.TransactionFilter{
		UserID: userID,
		From:   &w.Start,
		To:     &w.End,
		Status: domain.TxCompleted,
	}, store.Page{})
}

func (a *Aggregator) Summarize(ctx context.Context, userID uuid.UUID, period domain.Period) (*Summary, error) {
	cur := period.Window(a.now())
	prev := cur.Previous()
	// One read spans both windows; entries are partitioned below.
	txns, err := a.completed(ctx, userID, domain.Window{Start: prev.Start, End: cur.End})
	if err != nil {
		return nil, err
	}

	var curTxns, prevTxns []domain.Transaction
	for _, t := range txns {
		switch {
		case cur.Contains(t.CreatedAt):
			curTxns = append(curTxns, t)
		case prev.Contains(t.CreatedAt):
			prevTxns = append(prevTxns, t)
		}
	}

	current := totals(curTxns)
	previous := totals(prevTxns)
	return &Summary{
		Period:      period,
		Start:       cur.Start,
		End:         cur.End,
		Totals:      current,
		TopCategory: topCategory(curTxns),
		PreviousPeriod: Comparison{
			Totals:       previous,
			SpentChange:  percentChange(previous.TotalSpent, current.TotalSpent),
			IncomeChange: percentChange(previous.TotalIncome, current.TotalIncome),
		},
	}, nil
}

func totals(txns []domain.Transaction) Totals {
	t := Totals{TotalSpent: decimal.Zero, TotalIncome: decimal.Zero}
	for _, tx := range txns {
		switch domain.Classify(tx.Type) {
		case domain.DirectionExpense:
			t.TotalSpent = t.TotalSpent.Add(tx.Amount)
		case domain.DirectionIncome:
			t.TotalIncome = t.TotalIncome.Add(tx.Amount)
		}
	}
	t.TransactionCount = len(txns)
	t.NetChange = t.TotalIncome.Sub(t.TotalSpent)
	return t
}

// categoryKey is the grouping key shared by topCategory and shares, so
// "Food" and "food" are one category everywhere.
func categoryKey(label string) string {
	return strings.ToLower(domain.CategoryOrDefault(strings.TrimSpace(label)))
}

// topCategory returns the expense category with the largest sum, spelled as
// first seen. Equal sums resolve to the lexicographically smallest key.
func topCategory(txns []domain.Transaction) string {
	sums := map[string]decimal.Decimal{}
	labels := map[string]string{}
	for _, t := range txns {
		if !t.Type.IsExpense() {
			continue
		}
		k := categoryKey(t.Category)
		if _, ok := labels[k]; !ok {
			labels[k] = domain.CategoryOrDefault(strings.TrimSpace(t.Category))
		}
		sums[k] = sums[k].Add(t.Amount)
	}
	best := ""
	var bestSum decimal.Decimal
	for k, sum := range sums {
		if best == "" || sum.GreaterThan(bestSum) || (sum.Equal(bestSum) && k < best) {
			best, bestSum = k, sum
		}
	}
	return labels[best]
}

// percentChange is (cur-prev)/prev as a percentage rounded to two places.
// From a zero baseline any growth counts as 100%.
func percentChange(prev, cur decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		if cur.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return cur.Sub(prev).Div(prev).Mul(hundred).Round(2)
}

func (a *Aggregator) Categorize(ctx context.Context, userID uuid.UUID, period domain.Period) (*Breakdown, error) {
	txns, err := a.completed(ctx, userID, period.Window(a.now()))
	if err != nil {
		return nil, err
	}
	var expenses, income []domain.Transaction
	for _, t := range txns {
		switch domain.Classify(t.Type) {
		case domain.DirectionExpense:
			expenses = append(expenses, t)
		case domain.DirectionIncome:
			income = append(income, t)
		}
	}
	b := &Breakdown{Period: period}
	b.Expenses, b.TotalExpenses = shares(expenses)
	b.Income, b.TotalIncome = shares(income)
	return b, nil
}

// shares groups by categoryKey. Percentages are of this side's total only.
func shares(txns []domain.Transaction) ([]CategoryShare, decimal.Decimal) {
	total := decimal.Zero
	index := map[string]int{}
	out := []CategoryShare{}
	for _, t := range txns {
		c := categoryKey(t.Category)
		i, ok := index[c]
		if !ok {
			i = len(out)
			index[c] = i
			out = append(out, CategoryShare{Category: c, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
		out[i].Count++
		total = total.Add(t.Amount)
	}
	for i := range out {
		out[i].Percentage = decimal.Zero
		if total.IsPositive() {
			out[i].Percentage = out[i].Amount.Div(total).Mul(hundred).Round(2)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Category < out[j].Category
	})
	return out, total
}

func (a *Aggregator) TimeSeries(ctx context.Context, userID uuid.UUID, period domain.Period) (*Series, error) {
	w := period.Window(a.now())
	txns, err := a.completed(ctx, userID, w)
	if err != nil {
		return nil, err
	}

	s := &Series{Period: period, Points: []Point{}}
	index := map[string]int{}
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		key := bucketKey(period, d)
		if _, ok := index[key]; !ok {
			index[key] = len(s.Points)
			s.Points = append(s.Points, Point{Bucket: key, Amount: decimal.Zero})
		}
	}
	for _, t := range txns {
		if !t.Type.IsExpense() {
			continue
		}
		i, ok := index[bucketKey(period, t.CreatedAt.In(w.End.Location()))]
		if !ok {
			continue
		}
		s.Points[i].Amount = s.Points[i].Amount.Add(t.Amount)
		s.Points[i].Count++
	}
	return s, nil
}

// bucketKey names the bucket t falls in: a day for week and month, a
// week-of-month for quarter and a month for year.
func bucketKey(p domain.Period, t time.Time) string {
	switch p {
	case domain.PeriodQuarter:
		return fmt.Sprintf("%s W%d", t.Format("2006-01"), (t.Day()-1)/7+1)
	case domain.PeriodYear:
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}
