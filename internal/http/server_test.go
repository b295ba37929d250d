package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/currency"
	"despesas/internal/ledger"
	applog "despesas/internal/log"
	"despesas/internal/middleware/ratelimit"
	"despesas/internal/report"
	"despesas/internal/storage/memory"
)

var testNow = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	rates := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","base_code":"BRL","rates":{"BRL":1,"USD":0.2,"EUR":0.17,"JPY":27.5}}`))
	}))
	t.Cleanup(rates.Close)

	tick := testNow
	clock := func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	led, err := ledger.Open(context.Background(), memory.New(),
		ledger.WithClock(clock), ledger.WithLogger(applog.Discard()))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	client := currency.NewClient(rates.URL, currency.WithClientLogger(applog.Discard()))
	tracker := currency.NewTracker(
		currency.NewConverter(client, currency.SourceCurrency, applog.Discard()),
		currency.WithTrackerLogger(applog.Discard()))

	opts = append([]Option{WithLogger(applog.Discard()), WithClock(func() time.Time { return testNow })}, opts...)
	srv := NewServer(":0", led, tracker, opts...)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		tracker.Wait()
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func addExpense(t *testing.T, srv *Server, text, cat, sub, value string) listResponse {
	t.Helper()
	body := `{"text":"` + text + `","category":"` + cat + `","subCategory":"` + sub + `","value":"` + value + `"}`
	rr := do(t, srv, http.MethodPost, "/api/expenses", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add %s: status=%d body=%s", text, rr.Code, rr.Body.String())
	}
	return decode[listResponse](t, rr)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, srv, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/taxonomy", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("request id missing: %q", rr.Header().Get("X-Request-ID"))
	}

	tax := decode[taxonomyResponse](t, rr)
	if len(tax.Categories) != 2 || tax.Categories[0].Name != "Despesa Fixa" {
		t.Fatalf("unexpected taxonomy: %+v", tax.Categories)
	}
	if len(tax.Currencies) != 3 {
		t.Fatalf("unexpected currencies: %v", tax.Currencies)
	}
}

func TestAddExpenseValidation(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"text":`, http.StatusBadRequest},
		{"empty text", `{"text":"","category":"Despesa Fixa","subCategory":"Aluguel","value":"10"}`, http.StatusUnprocessableEntity},
		{"missing value", `{"text":"x","category":"Despesa Fixa","subCategory":"Aluguel"}`, http.StatusUnprocessableEntity},
		{"garbage value", `{"text":"x","category":"Despesa Fixa","subCategory":"Aluguel","value":"abc"}`, http.StatusUnprocessableEntity},
		{"negative value", `{"text":"x","category":"Despesa Fixa","subCategory":"Aluguel","value":-5}`, http.StatusUnprocessableEntity},
		{"unknown category", `{"text":"x","category":"Other","subCategory":"Aluguel","value":"1"}`, http.StatusUnprocessableEntity},
		{"mismatched subcategory", `{"text":"x","category":"Despesa Fixa","subCategory":"Lazer","value":"1"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if decode[errorResponse](t, rr).Error == "" {
				t.Fatal("error message missing")
			}
		})
	}

	if list := decode[listResponse](t, do(t, srv, http.MethodGet, "/api/expenses", "")); len(list.Expenses) != 0 {
		t.Fatalf("invalid input must not add records: %+v", list.Expenses)
	}
}

func TestAddAndListByCategory(t *testing.T) {
	srv := newTestServer(t)
	addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1500,00")
	list := addExpense(t, srv, "Lunch", "Despesa Variável", "Alimentação", "32.5")

	if len(list.Expenses) != 2 || list.Total != "1532.50" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list.Expenses[0].Date.String() != "2025-06-10" {
		t.Fatalf("unexpected date %s", list.Expenses[0].Date)
	}

	fixed := decode[listResponse](t, do(t, srv, http.MethodGet, "/api/expenses?category=Despesa+Fixa", ""))
	if len(fixed.Expenses) != 1 || fixed.Expenses[0].Text != "Rent" {
		t.Fatalf("category filter: %+v", fixed.Expenses)
	}
	if fixed.Total != "1532.50" {
		t.Fatalf("total must cover the whole ledger, got %s", fixed.Total)
	}
}

func TestAddAcceptsExponentValue(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/api/expenses", `{"text":"Rent","category":"Despesa Fixa","subCategory":"Aluguel","value":1e3}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if list := decode[listResponse](t, rr); list.Total != "1000.00" {
		t.Fatalf("total = %s", list.Total)
	}
}

func TestRemoveExpense(t *testing.T) {
	srv := newTestServer(t)
	list := addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1500")
	id := list.Expenses[0].ID

	if rr := do(t, srv, http.MethodDelete, "/api/expenses/abc", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", rr.Code)
	}

	path := "/api/expenses/" + jsonInt(id)
	rr := do(t, srv, http.MethodDelete, path, "")
	if rr.Code != http.StatusOK || len(decode[listResponse](t, rr).Expenses) != 0 {
		t.Fatalf("remove: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodDelete, path, ""); rr.Code != http.StatusOK {
		t.Fatalf("second remove should be a no-op, got %d", rr.Code)
	}
}

func TestEditFlow(t *testing.T) {
	srv := newTestServer(t)
	list := addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1500")
	addExpense(t, srv, "Bus", "Despesa Variável", "Transporte", "4.40")
	id := list.Expenses[0].ID

	if rr := do(t, srv, http.MethodPost, "/api/edit/commit", ""); rr.Code != http.StatusConflict {
		t.Fatalf("commit without edit: %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/expenses/999/edit", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("edit unknown id: %d", rr.Code)
	}

	rr := do(t, srv, http.MethodPost, "/api/expenses/"+jsonInt(id)+"/edit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("start edit: %d %s", rr.Code, rr.Body.String())
	}
	started := decode[editResponse](t, rr)
	if !started.Editing || started.Draft.Text != "Rent" || !started.Draft.Value.Decimal.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected draft: %+v", started)
	}

	rr = do(t, srv, http.MethodPut, "/api/edit", `{"text":"","category":"Despesa Fixa","subCategory":"Aluguel","value":"1600"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update edit: %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/edit/commit", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid commit: %d", rr.Code)
	}
	if view := decode[editResponse](t, do(t, srv, http.MethodGet, "/api/edit", "")); !view.Editing {
		t.Fatal("buffer must survive a failed commit")
	}

	do(t, srv, http.MethodPut, "/api/edit", `{"text":"Rent June","category":"Despesa Fixa","subCategory":"Aluguel","value":1600}`)
	rr = do(t, srv, http.MethodPost, "/api/edit/commit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body.String())
	}
	after := decode[listResponse](t, rr)
	if after.Expenses[0].Text != "Rent June" || after.Expenses[0].ID != id || after.Expenses[1].Text != "Bus" {
		t.Fatalf("unexpected list after commit: %+v", after.Expenses)
	}
	if after.Total != "1604.40" {
		t.Fatalf("total = %s", after.Total)
	}
	if view := decode[editResponse](t, do(t, srv, http.MethodGet, "/api/edit", "")); view.Editing {
		t.Fatal("buffer should be cleared after commit")
	}
}

func TestCancelEdit(t *testing.T) {
	srv := newTestServer(t)
	list := addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1500")
	do(t, srv, http.MethodPost, "/api/expenses/"+jsonInt(list.Expenses[0].ID)+"/edit", "")

	if rr := do(t, srv, http.MethodDelete, "/api/edit", ""); rr.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPut, "/api/edit", `{"text":"x"}`); rr.Code != http.StatusConflict {
		t.Fatalf("update after cancel: %d", rr.Code)
	}
}

func TestOverview(t *testing.T) {
	srv := newTestServer(t)
	addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1500.00")

	rr := do(t, srv, http.MethodGet, "/api/reports/overview?year=2025&month=6", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	ov := decode[report.Overview](t, rr)
	if len(ov.DailyTotals) != 30 || !ov.DailyTotals[9].Total.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("daily totals: %+v", ov.DailyTotals)
	}
	if len(ov.MonthlySums) != 1 || ov.MonthlySums[0].Name != "Despesa Fixa" {
		t.Fatalf("monthly sums: %+v", ov.MonthlySums)
	}
	if !ov.MonthlyAverage.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("average: %s", ov.MonthlyAverage)
	}

	// Defaults to the current month.
	if ov := decode[report.Overview](t, do(t, srv, http.MethodGet, "/api/reports/overview", "")); ov.Filter.Month != 6 || ov.Filter.Year != 2025 {
		t.Fatalf("default period: %+v", ov.Filter)
	}

	filtered := decode[report.Overview](t, do(t, srv, http.MethodGet, "/api/reports/overview?year=2025&month=6&subcategory=Lazer", ""))
	if !filtered.DailyTotals[9].Total.IsZero() {
		t.Fatal("subcategory filter ignored")
	}

	for _, q := range []string{"month=13", "month=0", "year=abc"} {
		if rr := do(t, srv, http.MethodGet, "/api/reports/overview?"+q, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", q, rr.Code)
		}
	}
}

func TestTrend(t *testing.T) {
	srv := newTestServer(t)
	addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1500")

	rr := do(t, srv, http.MethodGet, "/api/reports/trend?year=2025&category=Despesa+Fixa", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	trend := decode[trendResponse](t, rr)
	if len(trend.Months) != 12 || trend.Months[5].Count != 1 {
		t.Fatalf("unexpected trend: %+v", trend)
	}

	if rr := do(t, srv, http.MethodGet, "/api/reports/trend?category=Nope", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown category: %d", rr.Code)
	}
}

type conversionBody struct {
	Status     string `json:"status"`
	Target     string `json:"target"`
	Message    string `json:"message"`
	Rate       string `json:"rate"`
	Converted  string `json:"converted"`
	Superseded bool   `json:"superseded"`
}

func TestConversion(t *testing.T) {
	srv := newTestServer(t)
	addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1000")

	if v := decode[conversionBody](t, do(t, srv, http.MethodGet, "/api/conversion", "")); v.Status != "idle" {
		t.Fatalf("initial status %q", v.Status)
	}

	rr := do(t, srv, http.MethodPost, "/api/conversion", `{"currency":"usd"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("convert: %d %s", rr.Code, rr.Body.String())
	}
	v := decode[conversionBody](t, rr)
	if v.Status != "ok" || v.Converted != "200.00" || v.Rate != "0.2000" || v.Target != "USD" {
		t.Fatalf("unexpected conversion: %+v", v)
	}

	rr = do(t, srv, http.MethodPost, "/api/conversion", `{"currency":"XYZ"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing currency: %d", rr.Code)
	}
	v = decode[conversionBody](t, rr)
	if v.Status != "not_found" || v.Message != currency.MessageNotFound || v.Converted != "200.00" {
		t.Fatalf("not-found view should keep the last result: %+v", v)
	}

	if rr := do(t, srv, http.MethodPost, "/api/conversion", `{"currency":""}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty currency: %d", rr.Code)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(ratelimit.Config{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Methods:           mutatingMethods,
	}))

	addExpense(t, srv, "Rent", "Despesa Fixa", "Aluguel", "1")
	rr := do(t, srv, http.MethodPost, "/api/expenses", `{"text":"x","category":"Despesa Fixa","subCategory":"Aluguel","value":"1"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	if rr := do(t, srv, http.MethodGet, "/api/expenses", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited: %d", rr.Code)
	}
	if m := srv.Metrics(); m["rate_limited"] != 1 || m["rate_limit_clients"] != 1 {
		t.Fatalf("metrics: %v", srv.Metrics())
	}
}

func TestRateLimitUsesForwardedClientBehindTrustedProxy(t *testing.T) {
	srv := newTestServer(t,
		WithTrustedProxies("192.0.2.0/24"),
		WithRateLimit(ratelimit.Config{RequestsPerWindow: 1, Window: time.Minute}))

	post := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/expenses",
			strings.NewReader(`{"text":"x","category":"Despesa Fixa","subCategory":"Aluguel","value":"1"}`))
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := post("198.51.100.7"); code != http.StatusCreated {
		t.Fatalf("first client: %d", code)
	}
	if code := post("198.51.100.8"); code != http.StatusCreated {
		t.Fatalf("second client should have its own budget: %d", code)
	}
	if code := post("198.51.100.7"); code != http.StatusTooManyRequests {
		t.Fatalf("first client again: %d", code)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	if rr := do(t, srv, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPatch, "/api/expenses", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func jsonInt(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
