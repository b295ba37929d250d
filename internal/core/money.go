// Package core provides value parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts typed by the
// user into decimal values.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseValue converts a user-typed amount to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero is a
// valid value; signs, thousands separators and anything non-numeric are not.
//
// Examples:
//
//	ParseValue("12.34") -> 12.34, nil
//	ParseValue("12,34") -> 12.34, nil
//	ParseValue("0")     -> 0, nil
//	ParseValue("-1")    -> error
func ParseValue(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrMissingValue
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrNegativeValue
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidValue
	}
	digits := 0
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidValue
			}
			digits++
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidValue
	}
	if parts[0] == "" {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidValue
	}
	return v, nil
}

// ErrInvalidValue is returned by ParseValue for malformed input.
var ErrInvalidValue = validationError("invalid value")
