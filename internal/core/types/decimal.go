// Package types provides the numeric types shared by the costing engine,
// the stock reader and the orchestrators.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a unit cost or price. Odoo stores costs as floats; they are
// converted once on decode and all arithmetic stays in decimal.
type Money = decimal.Decimal

// MustMoney parses s and panics on error. Use only for constants.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
// The ERP reports quantities as floats; they are normalized on decode so
// before/after projections compare exactly.
type Quantity int64

const quantityPlaces = 4

const quantityScale = 10_000

func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * quantityScale))
}

// NewQuantityFromDecimal rounds d half away from zero to 4 places. d must
// fit the range; use ParseQuantity for untrusted input.
func NewQuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(quantityPlaces).Round(0).IntPart())
}

func (q Quantity) Float64() float64 { return float64(q) / quantityScale }

// Decimal returns the quantity as a decimal for cost arithmetic.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -quantityPlaces) }

func (q Quantity) Add(o Quantity) Quantity { return q + o }

func (q Quantity) Sub(o Quantity) Quantity { return q - o }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

// String renders exactly 4 fractional digits ("-2.5000").
func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityPlaces)
}

// MarshalJSON encodes Quantity as a JSON number with 4 fractional digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string or null (zero).
// Odoo sends numbers; HTTP callers sometimes send strings.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}

	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuantity parses a decimal string, exponent form included.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	scaled := d.Shift(quantityPlaces).Round(0)
	if scaled.GreaterThan(maxScaled) || scaled.LessThan(minScaled) {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}
	return Quantity(scaled.IntPart()), nil
}

var (
	maxScaled = decimal.NewFromInt(math.MaxInt64)
	minScaled = decimal.NewFromInt(math.MinInt64)
)
