package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKindAndCode(t *testing.T) {
	active := Conflict("SessionAlreadyActive", "session open")
	notActive := Conflict("SessionNotActive", "session closed")

	wrapped := fmt.Errorf("start: %w", active)
	assert.True(t, errors.Is(wrapped, active))
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, notActive))
	assert.False(t, errors.Is(wrapped, ErrNotFound))

	de, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindConflict, de.Kind)
	assert.Equal(t, "session open", de.Error())
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2025-01-01", "2025-01-31")
	require.NoError(t, err)
	assert.True(t, r.Contains(time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))

	_, err = ParseDateRange("2025-02-01", "2025-01-01")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseDateRange("01/02/2025", "2025-01-01")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2025, 1, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 1, 11, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, 1, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestParseAmountRejectsMalformedInput(t *testing.T) {
	d, err := ParseAmount(" 120.50 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("120.5")))

	_, err = ParseAmount("12,0")
	assert.ErrorIs(t, err, ErrValidation)

	assert.True(t, WithinTolerance(decimal.RequireFromString("10.00"), decimal.RequireFromString("10.01"), Cent))
	assert.False(t, WithinTolerance(decimal.RequireFromString("10.00"), decimal.RequireFromString("10.02"), Cent))
}
