package core

import "sort"

// Summary aggregates a set of transactions.
type Summary struct {
	Income  Money
	Expense Money
	Balance Money
	Count   int
}

// Summarize totals income and expense; Balance is income minus expense.
func Summarize(items []Transaction) Summary {
	var s Summary
	for _, t := range items {
		switch t.Type {
		case Income:
			s.Income.Amount += t.Amount.Amount
		case Expense:
			s.Expense.Amount += t.Amount.Amount
		}
		s.Count++
	}
	s.Balance.Amount = s.Income.Amount - s.Expense.Amount
	return s
}

// TopExpenses returns up to n expenses ordered by amount, largest first.
// Ties keep their input order.
func TopExpenses(items []Transaction, n int) []Transaction {
	var out []Transaction
	for _, t := range items {
		if t.Type == Expense {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.Amount > out[j].Amount.Amount
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
