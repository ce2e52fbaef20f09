// Package money converts between provider decimal amounts and integer minor units.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseCents parses a decimal major-unit string such as "49.90" into cents,
// rounding half away from zero.
func ParseCents(value string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: negative", value)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

// FormatCents renders cents as a two-decimal major-unit string.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ToDecimal returns cents as a major-unit decimal.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ApplyRate multiplies cents by rate and rounds half away from zero to whole cents.
func ApplyRate(cents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart()
}
