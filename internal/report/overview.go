package report

import (
	"errors"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
)

var ErrInvalidPeriod = errors.New("invalid year or month")

// Filter carries the selections of the reporting view.
type Filter struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
}

func (f Filter) Validate() error {
	if f.Month < 1 || f.Month > 12 || f.Year < 1 || f.Year > 9999 {
		return ErrInvalidPeriod
	}
	return nil
}

// Overview bundles every dataset of the reporting view.
type Overview struct {
	Filter         Filter           `json:"filter"`
	CategoryCounts []CategoryCount  `json:"categoryCounts"`
	MonthlySums    []CategoryAmount `json:"monthlySums"`
	DailyTotals    []DayTotal       `json:"dailyTotals"`
	MonthlyAverage decimal.Decimal  `json:"monthlyAverage"`
	MonthlyTotal   decimal.Decimal  `json:"monthlyTotal"`
	LedgerTotal    decimal.Decimal  `json:"ledgerTotal"`
	Records        int              `json:"records"`
}

// Build computes the overview for f from scratch.
func Build(records []core.Expense, f Filter) (Overview, error) {
	if err := f.Validate(); err != nil {
		return Overview{}, err
	}
	return Overview{
		Filter:         f,
		CategoryCounts: CategoryCounts(records),
		MonthlySums:    MonthlyCategorySums(records, f.Year, f.Month),
		DailyTotals: DailyTotals(records, DailyFilter{
			Year:        f.Year,
			Month:       f.Month,
			Category:    f.Category,
			SubCategory: f.SubCategory,
		}),
		MonthlyAverage: MonthlyAverage(records, f.Year, f.Month),
		MonthlyTotal:   MonthlyTotal(records, f.Year, f.Month),
		LedgerTotal:    core.Total(records),
		Records:        len(records),
	}, nil
}
