package http

import (
	"net/http"

	"despesas/internal/core"
	"despesas/internal/ledger"
)

type listResponse struct {
	Category string         `json:"category"`
	Expenses []core.Expense `json:"expenses"`
	Total    string         `json:"total"`
}

type editResponse struct {
	Editing bool        `json:"editing"`
	ID      int64       `json:"id,omitempty"`
	Draft   *core.Draft `json:"draft,omitempty"`
}

type taxonomyResponse struct {
	Categories []core.CategoryGroup `json:"categories"`
	Currencies []string             `json:"currencies"`
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, taxonomyResponse{
		Categories: s.ledger.Taxonomy().Groups(),
		Currencies: supportedCurrencies(),
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	s.writeList(w, http.StatusOK, filterParam(r, "category"))
}

// writeList renders the filtered list and the ledger-wide total.
func (s *Server) writeList(w http.ResponseWriter, status int, category string) {
	writeJSON(w, status, listResponse{
		Category: category,
		Expenses: s.ledger.ListByCategory(category),
		Total:    s.ledger.Total().StringFixed(2),
	})
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	d, err := req.toDraft()
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if _, err := s.ledger.Add(r.Context(), d); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	s.writeList(w, http.StatusCreated, filterParam(r, "category"))
}

func (s *Server) handleRemoveExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if _, err := s.ledger.Remove(r.Context(), id); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	s.writeList(w, http.StatusOK, filterParam(r, "category"))
}

func (s *Server) handleStartEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	d, err := s.ledger.StartEdit(id)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Editing: true, ID: id, Draft: &d})
}

func (s *Server) handleGetEdit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, editView(s.ledger))
}

func (s *Server) handleUpdateEdit(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	d, err := req.toDraft()
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.UpdateEdit(d); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editView(s.ledger))
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	s.ledger.CancelEdit()
	writeJSON(w, http.StatusOK, editResponse{})
}

func (s *Server) handleCommitEdit(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ledger.CommitEdit(r.Context()); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	s.writeList(w, http.StatusOK, filterParam(r, "category"))
}

func editView(l *ledger.Ledger) editResponse {
	buf, ok := l.Editing()
	if !ok {
		return editResponse{}
	}
	return editResponse{Editing: true, ID: buf.ID, Draft: &buf.Draft}
}
