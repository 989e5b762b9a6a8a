// Package argons formats and parses argon amounts. Amounts are carried as
// int64 milligons everywhere else in the module.
package argons

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var maxMilligons = decimal.NewFromInt(math.MaxInt64)

// CurrencyCode is the go-money code registered for the argon.
const CurrencyCode = "ARGN"

// MilligonsPerArgon is the fixed subdivision of one argon.
const MilligonsPerArgon = 1_000

var (
	// ErrInvalidAmount is returned when a textual amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid argon amount")

	currency = money.AddCurrency(CurrencyCode, "₳", "$1", ".", ",", 3)
)

// Format renders milligons as a display string, e.g. 1500 -> "₳1.500".
func Format(milligons int64) string {
	return currency.Formatter().Format(milligons)
}

// Parse converts a decimal argon amount ("1.5", "₳2") into milligons.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "₳"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	m := d.Shift(3)
	if !m.Equal(m.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than 3 decimal places", ErrInvalidAmount)
	}
	if m.IsNegative() {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if m.GreaterThan(maxMilligons) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return m.IntPart(), nil
}
