// Package core holds the expense domain model: dates, amounts,
// candidate field validation and range summaries.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount reports an amount string that cannot be read as a
// decimal number.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string into a two-place amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Amounts may be negative (income vs. expense is encoded by sign in
// some ledgers). Anything beyond two decimal places is rounded half
// away from zero, so "12.345" becomes 12.35.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// FormatAmount renders an amount with exactly two decimal places, the
// form used by the CSV exporter and the API layer.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
