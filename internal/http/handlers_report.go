package http

import (
	"errors"
	"net/http"

	"despesas/internal/report"
)

type trendResponse struct {
	Year     int                 `json:"year"`
	Category string              `json:"category"`
	Months   []report.MonthCount `json:"months"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	year, month, err := parseYearMonth(r, now.Year(), int(now.Month()))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	ov, err := report.Build(s.ledger.List(), report.Filter{
		Year:        year,
		Month:       month,
		Category:    filterParam(r, "category"),
		SubCategory: filterParam(r, "subcategory"),
	})
	if errors.Is(err, report.ErrInvalidPeriod) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	year, _, err := parseYearMonth(r, s.now().Year(), 1)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, report.ErrInvalidPeriod.Error())
		return
	}

	category := filterParam(r, "category")
	if !s.ledger.Taxonomy().HasCategory(category) {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	writeJSON(w, http.StatusOK, trendResponse{
		Year:     year,
		Category: category,
		Months:   report.CategoryTrend(s.ledger.List(), year, category),
	})
}
