// Package cpmm implements constant-product market maker math (x * y = k) for
// the AMM pool engine.
//
// All functions operate on integral base units and floor every division, so
// rounding always favours the pool. The curve is stateless: reserves are
// passed as arguments, not stored.
package cpmm

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/fixedpoint"
)

var (
	// ErrInvalidFee is returned when the fee is 100% or more.
	ErrInvalidFee = errors.New("cpmm: fee must be below 10000 bps")

	// ErrInsufficientLiquidity is returned when a reserve is zero.
	ErrInsufficientLiquidity = errors.New("cpmm: insufficient liquidity")

	// ErrZeroAmount is returned for zero input amounts.
	ErrZeroAmount = errors.New("cpmm: amount must be positive")
)

// Curve prices swaps for one pool fee.
type Curve struct {
	feeBps uint16
}

// NewCurve creates a curve charging feeBps on every input.
func NewCurve(feeBps uint16) (*Curve, error) {
	if feeBps >= 10000 {
		return nil, ErrInvalidFee
	}
	return &Curve{feeBps: feeBps}, nil
}

// FeeBps returns the swap fee in basis points.
func (c *Curve) FeeBps() uint16 {
	return c.feeBps
}

// AmountOut returns the output for amountIn against (reserveIn, reserveOut):
//
//	out = amountIn*(10000-fee)*reserveOut / (reserveIn*10000 + amountIn*(10000-fee))
//
// Folding the fee into one division avoids the double floor of computing the
// effective input separately.
func (c *Curve) AmountOut(amountIn, reserveIn, reserveOut decimal.Decimal) (decimal.Decimal, error) {
	if !amountIn.IsPositive() {
		return decimal.Zero, ErrZeroAmount
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	inWithFee := amountIn.Mul(fixedpoint.BPS.Sub(decimal.NewFromInt(int64(c.feeBps))))
	num := inWithFee.Mul(reserveOut)
	den := reserveIn.Mul(fixedpoint.BPS).Add(inWithFee)
	return fixedpoint.Div(num, den)
}

// AmountIn returns the minimum input that yields at least amountOut.
func (c *Curve) AmountIn(amountOut, reserveIn, reserveOut decimal.Decimal) (decimal.Decimal, error) {
	if !amountOut.IsPositive() {
		return decimal.Zero, ErrZeroAmount
	}
	if !reserveIn.IsPositive() || amountOut.GreaterThanOrEqual(reserveOut) {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	num := reserveIn.Mul(amountOut).Mul(fixedpoint.BPS)
	den := reserveOut.Sub(amountOut).Mul(fixedpoint.BPS.Sub(decimal.NewFromInt(int64(c.feeBps))))
	q, err := fixedpoint.Div(num, den)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Add(decimal.NewFromInt(1)), nil
}

// Quote returns the amount of B equivalent to amountA at the current ratio.
func Quote(amountA, reserveA, reserveB decimal.Decimal) (decimal.Decimal, error) {
	if !amountA.IsPositive() {
		return decimal.Zero, ErrZeroAmount
	}
	if !reserveA.IsPositive() || !reserveB.IsPositive() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	return fixedpoint.MulDiv(amountA, reserveB, reserveA)
}

// InitialShares returns the LP shares minted by the first deposit into an
// empty pool: floor(sqrt(a*b)).
func InitialShares(amountA, amountB decimal.Decimal) decimal.Decimal {
	return fixedpoint.Sqrt(amountA.Mul(amountB))
}

// MintShares returns the LP shares minted by a deposit into a funded pool:
// min(a*L/rA, b*L/rB).
func MintShares(amountA, amountB, reserveA, reserveB, totalLiquidity decimal.Decimal) (decimal.Decimal, error) {
	sa, err := fixedpoint.MulDiv(amountA, totalLiquidity, reserveA)
	if err != nil {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	sb, err := fixedpoint.MulDiv(amountB, totalLiquidity, reserveB)
	if err != nil {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	return fixedpoint.Min(sa, sb), nil
}

// RemoveAmounts returns the reserves owed for burning liquidity shares.
func RemoveAmounts(liquidity, reserveA, reserveB, totalLiquidity decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	a, err := fixedpoint.MulDiv(liquidity, reserveA, totalLiquidity)
	if err != nil {
		return decimal.Zero, decimal.Zero, ErrInsufficientLiquidity
	}
	b, err := fixedpoint.MulDiv(liquidity, reserveB, totalLiquidity)
	if err != nil {
		return decimal.Zero, decimal.Zero, ErrInsufficientLiquidity
	}
	return a, b, nil
}

// SpotPrice returns reserveB/reserveA scaled to fixedpoint.Scale: the price of
// one unit of A in units of B, ignoring fees and price impact.
func SpotPrice(reserveA, reserveB decimal.Decimal) (decimal.Decimal, error) {
	if !reserveA.IsPositive() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	return fixedpoint.MulDiv(reserveB, decimal.New(1, fixedpoint.Scale), reserveA)
}

// Invariant returns k = reserveA * reserveB.
func Invariant(reserveA, reserveB decimal.Decimal) decimal.Decimal {
	return reserveA.Mul(reserveB)
}
