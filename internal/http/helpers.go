package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
	"despesas/internal/ledger"
	applog "despesas/internal/log"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeLedgerError maps ledger and validation errors to status codes.
// Validation failures are user messages; anything else is logged.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrExpenseNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrNoEditInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger operation failed",
			applog.FieldError, err,
			applog.FieldPath, r.URL.Path)
		writeError(w, http.StatusInternalServerError, "could not save the ledger")
	}
}

// decodeJSON reads one JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

// draftRequest accepts the value as a JSON string ("12,50") or number.
type draftRequest struct {
	Text        string          `json:"text"`
	Category    string          `json:"category"`
	SubCategory string          `json:"subCategory"`
	Value       json.RawMessage `json:"value"`
}

func (d draftRequest) toDraft() (core.Draft, error) {
	draft := core.Draft{
		Text:        sanitizeInput(d.Text),
		Category:    sanitizeInput(d.Category),
		SubCategory: sanitizeInput(d.SubCategory),
	}

	raw := strings.TrimSpace(string(d.Value))
	if raw == "" || raw == "null" {
		return draft, nil
	}
	if !strings.HasPrefix(raw, `"`) {
		// A JSON number, possibly in exponent form.
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return core.Draft{}, core.ErrInvalidValue
		}
		if v.IsNegative() {
			return core.Draft{}, core.ErrNegativeValue
		}
		draft.Value = decimal.NewNullDecimal(v)
		return draft, nil
	}
	var s string
	if err := json.Unmarshal(d.Value, &s); err != nil {
		return core.Draft{}, core.ErrInvalidValue
	}
	raw = s
	if strings.TrimSpace(raw) == "" {
		return draft, nil
	}
	v, err := core.ParseValue(raw)
	if err != nil {
		return core.Draft{}, err
	}
	draft.Value = decimal.NewNullDecimal(v)
	return draft, nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid expense id", errBadRequest)
	}
	return id, nil
}

// parseYearMonth reads year and month from the query, defaulting each to
// the given values when absent.
func parseYearMonth(r *http.Request, defYear, defMonth int) (year, month int, err error) {
	year, month = defYear, defMonth
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: invalid year", errBadRequest)
		}
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: invalid month", errBadRequest)
		}
	}
	return year, month, nil
}

// filterParam returns the trimmed query value, or core.AllFilter when empty.
func filterParam(r *http.Request, key string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return core.AllFilter
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
