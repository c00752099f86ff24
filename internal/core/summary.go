package core

import "sort"

// Summary is the dashboard view of a set of transactions.
type Summary struct {
	TotalIncome    Money            `json:"totalIncome"`
	TotalExpense   Money            `json:"totalExpense"`
	Balance        Money            `json:"balance"`
	CategoryTotals map[string]Money `json:"categoryTotals"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Aggregate reduces one owner's transactions into a Summary. Transactions
// whose kind is neither income nor expense contribute to nothing. Income is
// not broken out by category. Totals saturate at the largest representable
// amount instead of wrapping.
func Aggregate(txs []Transaction) Summary {
	s := Summary{CategoryTotals: make(map[string]Money)}
	for _, t := range txs {
		switch t.Kind {
		case Income:
			s.TotalIncome.Cents = addSaturating(s.TotalIncome.Cents, t.Amount.Cents)
		case Expense:
			s.TotalExpense.Cents = addSaturating(s.TotalExpense.Cents, t.Amount.Cents)
			ct := s.CategoryTotals[t.Category]
			ct.Cents = addSaturating(ct.Cents, t.Amount.Cents)
			s.CategoryTotals[t.Category] = ct
		}
	}
	s.Balance.Cents = s.TotalIncome.Cents - s.TotalExpense.Cents
	return s
}

// SortedCategories returns category totals ordered by amount descending, then name.
func (s Summary) SortedCategories() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(s.CategoryTotals))
	for name, amount := range s.CategoryTotals {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}
