package currency

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	applog "despesas/internal/log"
)

type staticRates struct {
	table RateTable
	err   error
	bases []string
}

func (s *staticRates) Rates(_ context.Context, base string) (RateTable, error) {
	s.bases = append(s.bases, base)
	return s.table, s.err
}

func usdTable() RateTable {
	return RateTable{Base: "BRL", Rates: map[string]decimal.Decimal{"USD": decimal.RequireFromString("0.2")}}
}

func TestConvertSuccess(t *testing.T) {
	src := &staticRates{table: usdTable()}
	c := NewConverter(src, "", applog.Discard())

	conv, err := c.Convert(context.Background(), decimal.RequireFromString("1000.00"), " usd ")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if conv.ConvertedString() != "200.00" || conv.RateString() != "0.2000" {
		t.Fatalf("unexpected conversion: %s at %s", conv.ConvertedString(), conv.RateString())
	}
	if conv.Source != "BRL" || conv.Target != "USD" {
		t.Fatalf("unexpected currencies: %+v", conv)
	}
	if len(src.bases) != 1 || src.bases[0] != SourceCurrency {
		t.Fatalf("rates should be keyed on BRL, got %v", src.bases)
	}
}

func TestConvertCurrencyNotFound(t *testing.T) {
	c := NewConverter(&staticRates{table: usdTable()}, "BRL", applog.Discard())
	_, err := c.Convert(context.Background(), decimal.NewFromInt(1000), "XYZ")
	if !errors.Is(err, ErrCurrencyNotFound) {
		t.Fatalf("expected ErrCurrencyNotFound, got %v", err)
	}
}

func TestConvertUnavailable(t *testing.T) {
	cause := &APIError{Type: "invalid-key"}
	c := NewConverter(&staticRates{err: cause}, "BRL", applog.Discard())
	_, err := c.Convert(context.Background(), decimal.NewFromInt(1), "USD")
	if !errors.Is(err, ErrRatesUnavailable) {
		t.Fatalf("expected ErrRatesUnavailable, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Type != "invalid-key" {
		t.Fatalf("cause should be kept, got %v", err)
	}
}
