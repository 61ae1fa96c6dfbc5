package shared

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Cent is the default rounding tolerance for monetary comparisons.
var Cent = decimal.New(1, -2)

// ParseAmount parses a decimal-safe amount string.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, Validation("amount is required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, Validation("malformed amount %q", value)
	}
	return d, nil
}

// WithinTolerance reports whether |a-b| <= tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
