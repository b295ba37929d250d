// Package report derives chart-ready summaries from a list of expenses.
//
// Every function is pure and recomputes from the full list it is given.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
)

type (
	// CategoryCount is one bar of the category chart.
	CategoryCount struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	// CategoryAmount is one slice of the monthly pie chart.
	CategoryAmount struct {
		Name   string          `json:"name"`
		Amount decimal.Decimal `json:"amount"`
	}

	// DayTotal is one point of the daily line chart.
	DayTotal struct {
		Day   int             `json:"day"`
		Total decimal.Decimal `json:"total"`
	}

	// MonthCount is one point of the yearly category trend.
	MonthCount struct {
		Month int `json:"month"` // 1-12
		Count int `json:"count"`
	}

	// DailyFilter selects the records plotted by DailyTotals. Empty or
	// core.AllFilter category/subcategory match everything.
	DailyFilter struct {
		Year        int
		Month       int
		Category    string
		SubCategory string
	}
)

// CategoryCounts counts records per category across the whole ledger, in
// order of first appearance.
func CategoryCounts(records []core.Expense) []CategoryCount {
	out := []CategoryCount{}
	index := map[string]int{}
	for _, e := range records {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryCount{Name: e.Category})
		}
		out[i].Count++
	}
	return out
}

// MonthlyCategorySums sums values per category for records dated in the
// given month. A month without records yields an empty slice.
func MonthlyCategorySums(records []core.Expense, year, month int) []CategoryAmount {
	out := []CategoryAmount{}
	index := map[string]int{}
	for _, e := range inMonth(records, year, month) {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryAmount{Name: e.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(e.Value)
	}
	return out
}

// DailyTotals sums matching values per day of the month. The result has one
// entry for every calendar day of the month, ascending, zero when empty.
func DailyTotals(records []core.Expense, f DailyFilter) []DayTotal {
	n := DaysIn(f.Year, f.Month)
	out := make([]DayTotal, n)
	for i := range out {
		out[i] = DayTotal{Day: i + 1, Total: decimal.Zero}
	}
	for _, e := range inMonth(records, f.Year, f.Month) {
		if !matches(f.Category, e.Category) || !matches(f.SubCategory, e.SubCategory) {
			continue
		}
		d := e.Date.Day() - 1
		out[d].Total = out[d].Total.Add(e.Value)
	}
	return out
}

// MonthlyAverage is the mean value of the month's records, or zero.
func MonthlyAverage(records []core.Expense, year, month int) decimal.Decimal {
	selected := inMonth(records, year, month)
	if len(selected) == 0 {
		return decimal.Zero
	}
	return core.Total(selected).Div(decimal.NewFromInt(int64(len(selected))))
}

// MonthlyTotal sums the month's records.
func MonthlyTotal(records []core.Expense, year, month int) decimal.Decimal {
	return core.Total(inMonth(records, year, month))
}

// CategoryTrend counts a category's records for each month of year.
func CategoryTrend(records []core.Expense, year int, category string) []MonthCount {
	out := make([]MonthCount, 12)
	for i := range out {
		out[i].Month = i + 1
	}
	for _, e := range records {
		if e.Date.Year() != year || e.Category != category {
			continue
		}
		out[e.Date.Month()-1].Count++
	}
	return out
}

// DaysIn returns the number of days in month of year.
func DaysIn(year, month int) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func inMonth(records []core.Expense, year, month int) []core.Expense {
	var out []core.Expense
	for _, e := range records {
		if e.Date.Year() == year && e.Date.Month() == month {
			out = append(out, e)
		}
	}
	return out
}

func matches(filter, v string) bool {
	return filter == "" || filter == core.AllFilter || filter == v
}
