package domain

// Direction is which side of a user's books a transaction type lands on.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionExpense
	DirectionIncome
)

func (d Direction) String() string {
	switch d {
	case DirectionExpense:
		return "expense"
	case DirectionIncome:
		return "income"
	}
	return "none"
}

// Classification is the single table shared by the transfer path (which
// picks leg types) and the analytics path (which sums them).
var Classification = map[TransactionType]Direction{
	TxWithdrawal:  DirectionExpense,
	TxPayment:     DirectionExpense,
	TxCardPayment: DirectionExpense,
	TxTransferOut: DirectionExpense,

	TxDeposit:    DirectionIncome,
	TxSalary:     DirectionIncome,
	TxRefund:     DirectionIncome,
	TxTransferIn: DirectionIncome,
	TxInterest:   DirectionIncome,
}

// Classify returns DirectionNone for types outside both sets.
func Classify(t TransactionType) Direction {
	return Classification[t]
}

func (t TransactionType) IsExpense() bool { return Classify(t) == DirectionExpense }

func (t TransactionType) IsIncome() bool { return Classify(t) == DirectionIncome }

// SingleSided reports whether the type may be recorded on its own, outside
// a transfer pair.
func (t TransactionType) SingleSided() bool {
	switch t {
	case TxTransferIn, TxTransferOut:
		return false
	}
	return Classify(t) != DirectionNone
}

// DefaultCategory labels entries that carry no category.
const DefaultCategory = "Other"

// CategoryOrDefault returns c, or DefaultCategory when c is blank.
func CategoryOrDefault(c string) string {
	if c == "" {
		return DefaultCategory
	}
	return c
}
