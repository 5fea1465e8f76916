// Package money implements the fixed-point amount used everywhere a price or
// balance is stored. Amounts carry exactly two fractional digits and are
// never represented as floating point.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every amount.
const Places = 2

// ErrInvalidAmount is returned for malformed amounts or amounts with more
// fractional digits than Places.
var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// Money is an exact decimal amount with two fractional digits.
// The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero returns 0.00.
func Zero() Money {
	return Money{}
}

// Parse reads a decimal string such as "100", "99.5" or "12.34".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return fromDecimal(d)
}

// MustParse is Parse for constants and tests; it panics on bad input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinor converts an amount in minor units (cents) to Money.
func FromMinor(minor int64) Money {
	return Money{d: decimal.New(minor, -Places)}
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Round(Places)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, d.String(), Places)
	}
	return Money{d: d.Round(Places)}, nil
}

// Minor returns the amount in minor units (cents).
func (m Money) Minor() int64 {
	return m.d.Shift(Places).IntPart()
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsZero() bool { return m.d.IsZero() }

// Percent returns pct percent of m rounded half-up to two places.
// pct is a plain percentage: 33 means 33%.
func (m Money) Percent(pct decimal.Decimal) Money {
	raw := m.d.Mul(pct).Div(hundred)
	if raw.IsNegative() {
		return Money{d: raw.Neg().Round(Places).Neg()}
	}
	return Money{d: raw.Round(Places)}
}

func (m Money) String() string {
	return m.d.StringFixed(Places)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	parsed, err := fromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("failed to scan money: %w", err)
	}
	m.d = d.Round(Places)
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
