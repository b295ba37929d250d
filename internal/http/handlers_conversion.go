package http

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"despesas/internal/currency"
	applog "despesas/internal/log"
)

type conversionRequest struct {
	Currency string `json:"currency"`
}

type conversionResponse struct {
	currency.View
	// Superseded is set when a newer request replaced this one before its
	// result arrived; the view then shows the newer request's state.
	Superseded bool `json:"superseded,omitempty"`
}

func supportedCurrencies() []string {
	return slices.Clone(currency.SupportedTargets)
}

func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, conversionResponse{View: s.tracker.View()})
}

// handleRequestConversion converts the current ledger total and waits for
// the outcome. The lookup keeps running if the client goes away; its result
// is still applied to the view.
func (s *Server) handleRequestConversion(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	target := strings.ToUpper(strings.TrimSpace(req.Currency))
	if target == "" {
		writeError(w, http.StatusUnprocessableEntity, "currency is required")
		return
	}

	total := s.ledger.Total()
	seq, done := s.tracker.Request(total, target)
	logger := applog.FromContext(r.Context())
	logger.InfoContext(r.Context(), "Conversion requested",
		applog.FieldCurrency, target,
		applog.FieldSequence, seq,
		applog.FieldValue, total.StringFixed(2))

	ctx, cancel := context.WithTimeout(r.Context(), s.conversionWait)
	defer cancel()

	select {
	case <-ctx.Done():
		writeJSON(w, http.StatusAccepted, conversionResponse{View: s.tracker.View()})
	case out := <-done:
		view := s.tracker.View()
		resp := conversionResponse{View: view, Superseded: !out.Applied}
		switch {
		case !out.Applied:
			writeJSON(w, http.StatusOK, resp)
		case view.Status == currency.StatusNotFound:
			writeJSON(w, http.StatusNotFound, resp)
		case view.Status == currency.StatusError:
			writeJSON(w, http.StatusBadGateway, resp)
		default:
			writeJSON(w, http.StatusOK, resp)
		}
	}
}
