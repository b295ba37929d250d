package core

import "github.com/shopspring/decimal"

// Total sums the values of records.
func Total(records []Expense) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range records {
		sum = sum.Add(e.Value)
	}
	return sum
}
