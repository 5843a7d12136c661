// Package fixedpoint implements the integer amount representation shared by
// every ledger component. Amounts, valuations, prices and LP shares are
// integral base units held in shopspring/decimal; never float64 for money.
//
// A human-readable value v is stored as v * 10^Scale base units.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places folded into every base-unit amount.
const Scale int32 = 18

var (
	// ErrInvalidAmount is returned for negative or fractional base-unit amounts.
	ErrInvalidAmount = errors.New("fixedpoint: amount must be a non-negative integer")

	// ErrDivisionByZero is returned by MulDiv when the divisor is zero.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")

	// BPS is the basis-point denominator (100% = 10000 bps).
	BPS = decimal.NewFromInt(10000)
)

// Validate checks that d is a usable base-unit amount.
func Validate(d decimal.Decimal) error {
	if d.IsNegative() || !d.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	return nil
}

// Parse reads a base-unit amount from its decimal string form.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := Validate(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Units converts a plain integer into base units without scaling.
func Units(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// ToUnits converts a human-readable value into base units, truncating any
// precision beyond Scale.
func ToUnits(human decimal.Decimal) decimal.Decimal {
	return human.Shift(Scale).Truncate(0)
}

// FromUnits converts base units back into a human-readable value.
func FromUnits(units decimal.Decimal) decimal.Decimal {
	return units.Shift(-Scale)
}

// Div returns floor(a / b) for non-negative integers. QuoRem with precision 0
// is exact, unlike Div which rounds to DivisionPrecision first.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	q, _ := a.QuoRem(b, 0)
	return q, nil
}

// MulDiv returns floor(a * b / c) for non-negative integers.
func MulDiv(a, b, c decimal.Decimal) (decimal.Decimal, error) {
	return Div(a.Mul(b), c)
}

// Sqrt returns floor(sqrt(d)) for a non-negative integer d.
func Sqrt(d decimal.Decimal) decimal.Decimal {
	if d.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).Sqrt(d.BigInt()), 0)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
