// Package currency looks up exchange rates and converts the ledger total.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"despesas/internal/cache"
	applog "despesas/internal/log"
)

// DefaultBaseURL answers GET {base}/{currency} with the rate table of currency.
const DefaultBaseURL = "https://open.er-api.com/v6/latest"

// RateTable maps currency codes to the amount of that currency one unit of
// Base buys.
type RateTable struct {
	Base       string
	Rates      map[string]decimal.Decimal
	FetchedAt  time.Time
	// NextUpdate is when the service publishes new rates; zero if unknown.
	NextUpdate time.Time
}

// APIError is a failure payload returned by the rate service.
type APIError struct {
	Type   string
	Status int
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("rate service returned status %d", e.Status)
	}
	return fmt.Sprintf("rate service error: %s", e.Type)
}

type ratesResponse struct {
	Result          string                     `json:"result"`
	Success         *bool                      `json:"success"`
	BaseCode        string                     `json:"base_code"`
	Rates           map[string]decimal.Decimal `json:"rates"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
	ErrorType       string                     `json:"error-type"`
	NextUpdateUnix  int64                      `json:"time_next_update_unix"`
}

func (r ratesResponse) ok() bool {
	if r.Success != nil {
		return *r.Success
	}
	return r.Result == "success"
}

// Client fetches rate tables over HTTP. Tables are cached per base currency
// and concurrent fetches of the same base share one request.
type Client struct {
	baseURL string
	http    *http.Client
	tables  *cache.LRUCache[RateTable]
	group   singleflight.Group
	logger  *applog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithCache replaces the default one-hour table cache.
func WithCache(tables *cache.LRUCache[RateTable]) ClientOption {
	return func(c *Client) { c.tables = tables }
}

func WithClientLogger(logger *applog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.WithComponent(applog.ComponentCurrency) }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tables:  cache.NewLRUCache[RateTable](16, time.Hour),
		logger:  applog.Default(applog.ComponentCurrency),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache exposes the table cache so it can be registered for cleanup.
func (c *Client) Cache() *cache.LRUCache[RateTable] {
	return c.tables
}

// Rates returns the rate table for base.
func (c *Client) Rates(ctx context.Context, base string) (RateTable, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if t, ok := c.tables.Get(base); ok {
		c.logger.DebugContext(ctx, "Using cached rate table", applog.FieldCurrency, base)
		return t, nil
	}

	v, err, shared := c.group.Do(base, func() (any, error) {
		t, err := c.fetch(ctx, base)
		if err != nil {
			return RateTable{}, err
		}
		// Rates are republished on a schedule; no point keeping a table past it.
		if t.NextUpdate.After(t.FetchedAt) {
			c.tables.SetUntil(base, t, t.NextUpdate)
		} else {
			c.tables.Set(base, t)
		}
		return t, nil
	})
	if err != nil {
		return RateTable{}, err
	}
	if shared {
		c.logger.DebugContext(ctx, "Shared in-flight rate fetch", applog.FieldCurrency, base)
	}
	return v.(RateTable), nil
}

func (c *Client) fetch(ctx context.Context, base string) (RateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+base, nil)
	if err != nil {
		return RateTable{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return RateTable{}, fmt.Errorf("get rates: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return RateTable{}, fmt.Errorf("read rates: %w", err)
	}

	var payload ratesResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode != http.StatusOK {
		return RateTable{}, &APIError{Type: payload.ErrorType, Status: resp.StatusCode}
	}
	if decodeErr != nil {
		return RateTable{}, fmt.Errorf("decode rates: %w", decodeErr)
	}
	if !payload.ok() {
		return RateTable{}, &APIError{Type: payload.ErrorType, Status: resp.StatusCode}
	}

	rates := payload.Rates
	if len(rates) == 0 {
		rates = payload.ConversionRates
	}
	table := RateTable{Base: base, Rates: make(map[string]decimal.Decimal, len(rates)), FetchedAt: time.Now()}
	if payload.NextUpdateUnix > 0 {
		table.NextUpdate = time.Unix(payload.NextUpdateUnix, 0)
	}
	for code, rate := range rates {
		if !rate.IsPositive() {
			c.logger.WarnContext(ctx, "Ignoring invalid rate", applog.FieldCurrency, code, "rate", rate.String())
			continue
		}
		table.Rates[strings.ToUpper(code)] = rate
	}

	c.logger.InfoContext(ctx, "Fetched rate table",
		applog.FieldCurrency, base,
		applog.FieldCount, len(table.Rates),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return table, nil
}
