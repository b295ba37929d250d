package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	applog "despesas/internal/log"
)

// SourceCurrency is the currency every expense is recorded in.
const SourceCurrency = "BRL"

// SupportedTargets are the conversions offered to the user.
var SupportedTargets = []string{"USD", "EUR", "JPY"}

var (
	ErrCurrencyNotFound = errors.New("currency not found")
	ErrRatesUnavailable = errors.New("exchange rates unavailable")
)

// RateSource returns the rate table of a base currency.
type RateSource interface {
	Rates(ctx context.Context, base string) (RateTable, error)
}

// Conversion is a successful lookup applied to a total.
type Conversion struct {
	Source    string          `json:"source"`
	Target    string          `json:"target"`
	Rate      decimal.Decimal `json:"rate"`
	Total     decimal.Decimal `json:"total"`
	Converted decimal.Decimal `json:"converted"`
}

// RateString formats the rate with four decimals.
func (c Conversion) RateString() string {
	return c.Rate.StringFixed(4)
}

// ConvertedString formats the converted total with two decimals.
func (c Conversion) ConvertedString() string {
	return c.Converted.StringFixed(2)
}

type Converter struct {
	rates  RateSource
	source string
	logger *applog.Logger
}

// NewConverter converts from source; an empty source means SourceCurrency.
func NewConverter(rates RateSource, source string, logger *applog.Logger) *Converter {
	if source == "" {
		source = SourceCurrency
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentCurrency)
	}
	return &Converter{
		rates:  rates,
		source: strings.ToUpper(source),
		logger: logger.WithComponent(applog.ComponentCurrency),
	}
}

func (c *Converter) Source() string {
	return c.source
}

// Convert multiplies total by the source→target rate.
func (c *Converter) Convert(ctx context.Context, total decimal.Decimal, target string) (Conversion, error) {
	target = strings.ToUpper(strings.TrimSpace(target))

	table, err := c.rates.Rates(ctx, c.source)
	if err != nil {
		c.logger.ErrorContext(ctx, "Rate lookup failed",
			applog.FieldOperation, applog.OpConvert,
			applog.FieldCurrency, target,
			applog.FieldError, err)
		return Conversion{}, fmt.Errorf("%w: %w", ErrRatesUnavailable, err)
	}

	rate, ok := table.Rates[target]
	if !ok || target == "" {
		c.logger.WarnContext(ctx, "Currency not in rate table",
			applog.FieldOperation, applog.OpConvert,
			applog.FieldCurrency, target)
		return Conversion{}, fmt.Errorf("%w: %s", ErrCurrencyNotFound, target)
	}

	return Conversion{
		Source:    c.source,
		Target:    target,
		Rate:      rate,
		Total:     total,
		Converted: total.Mul(rate),
	}, nil
}
