// Package core provides money parsing and handling utilities.
//
// Amounts are quantised to cents when they enter the system and every sum
// after that is exact integer arithmetic. Decimal conversion only happens at
// the edges (request decoding and presentation).
package core

import (
	"bytes"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// MaxCents bounds a single amount to ten trillion currency units.
const MaxCents int64 = 1e15

const (
	maxAmountLen = 32
	minExponent  = -30
	maxExponent  = 15
)

var maxMoney = decimal.New(MaxCents, -2)

// ParseAmount converts a decimal string to Money with half-up rounding on the
// third fractional digit.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Negative values, empty strings and anything that is not a finite number are
// rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> {1234}
//	ParseAmount("12,345") -> {1235}
//	ParseAmount("0")      -> {0}
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if len(s) > maxAmountLen {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal quantises d to cents. Exponents outside a narrow range are
// rejected before rounding so rescaling stays cheap.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return Money{}, ErrInvalidAmount
	}
	d = d.Round(2)
	if d.GreaterThan(maxMoney) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Shift(2).IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents < 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

// addSaturating adds b to a, pinning the result at MaxInt64 instead of wrapping.
func addSaturating(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float is for chart rendering only. Use Cents for arithmetic.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON number with two fraction digits.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return ErrInvalidAmount
	}
	parsed, err := ParseAmount(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
