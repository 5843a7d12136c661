package cpmm

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from integer strings.
func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- Constructor tests ---

func TestNewCurve_Valid(t *testing.T) {
	c, err := NewCurve(30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.FeeBps() != 30 {
		t.Errorf("expected fee=30, got %d", c.FeeBps())
	}
}

func TestNewCurve_FullFee(t *testing.T) {
	_, err := NewCurve(10000)
	if err != ErrInvalidFee {
		t.Errorf("expected ErrInvalidFee for 10000 bps, got %v", err)
	}
}

// --- Swap output tests ---

func TestAmountOut_PriceImpact(t *testing.T) {
	c, _ := NewCurve(30)
	out, err := c.AmountOut(d("1000"), d("100000"), d("50000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	naive := d("500") // 1000 * 50000 / 100000
	if !out.LessThan(naive) {
		t.Errorf("output %s should be below naive ratio %s", out, naive)
	}
	if !out.IsPositive() {
		t.Errorf("output should be positive, got %s", out)
	}
	// 1000*9970*50000 / (100000*10000 + 1000*9970) = 493.6...
	if !out.Equal(d("493")) {
		t.Errorf("expected floor output 493, got %s", out)
	}
}

func TestAmountOut_ZeroFeeMatchesCurve(t *testing.T) {
	c, _ := NewCurve(0)
	out, _ := c.AmountOut(d("100"), d("1000"), d("1000"))
	// 100*1000/1100 = 90.9
	if !out.Equal(d("90")) {
		t.Errorf("expected 90, got %s", out)
	}
}

func TestAmountOut_InvariantNeverDecreases(t *testing.T) {
	for _, fee := range []uint16{0, 5, 30, 100, 1000} {
		c, _ := NewCurve(fee)
		rIn, rOut := d("1000000"), d("777777")
		for _, in := range []string{"1", "17", "1000", "250000", "999999"} {
			amt := d(in)
			out, err := c.AmountOut(amt, rIn, rOut)
			if err != nil {
				t.Fatalf("fee=%d in=%s: %v", fee, in, err)
			}
			before := Invariant(rIn, rOut)
			after := Invariant(rIn.Add(amt), rOut.Sub(out))
			if after.LessThan(before) {
				t.Errorf("fee=%d in=%s: k decreased %s -> %s", fee, in, before, after)
			}
			if fee > 0 && !after.GreaterThan(before) {
				t.Errorf("fee=%d in=%s: k should strictly increase", fee, in)
			}
		}
	}
}

func TestAmountOut_EmptyReserves(t *testing.T) {
	c, _ := NewCurve(30)
	if _, err := c.AmountOut(d("1"), d("0"), d("100")); err != ErrInsufficientLiquidity {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if _, err := c.AmountOut(d("0"), d("100"), d("100")); err != ErrZeroAmount {
		t.Errorf("expected ErrZeroAmount, got %v", err)
	}
}

func TestAmountIn_InvertsAmountOut(t *testing.T) {
	c, _ := NewCurve(30)
	rIn, rOut := d("100000"), d("50000")
	need, err := c.AmountIn(d("493"), rIn, rOut)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := c.AmountOut(need, rIn, rOut)
	if got.LessThan(d("493")) {
		t.Errorf("AmountIn(%s) yields only %s", need, got)
	}
}

// --- Liquidity tests ---

func TestInitialShares(t *testing.T) {
	if got := InitialShares(d("100000"), d("50000")); !got.Equal(d("70710")) {
		t.Errorf("expected floor(sqrt(5e9)) = 70710, got %s", got)
	}
}

func TestQuote(t *testing.T) {
	got, err := Quote(d("1000"), d("100000"), d("50000"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(d("500")) {
		t.Errorf("expected 500, got %s", got)
	}
}

func TestMintAndRemove_RoundTrip(t *testing.T) {
	r0, r1, total := d("100000"), d("50000"), d("70710")
	shares, err := MintShares(d("10000"), d("5000"), r0, r1, total)
	if err != nil {
		t.Fatal(err)
	}
	if !shares.Equal(d("7071")) {
		t.Errorf("expected 7071 shares, got %s", shares)
	}

	a, b, err := RemoveAmounts(shares, r0.Add(d("10000")), r1.Add(d("5000")), total.Add(shares))
	if err != nil {
		t.Fatal(err)
	}
	// Rounding may only shave units off, never pay out more than deposited.
	if a.GreaterThan(d("10000")) || b.GreaterThan(d("5000")) {
		t.Errorf("round trip paid out more than deposited: %s / %s", a, b)
	}
	if d("10000").Sub(a).GreaterThan(d("2")) || d("5000").Sub(b).GreaterThan(d("2")) {
		t.Errorf("round trip lost too much: %s / %s", a, b)
	}
}

func TestSpotPrice(t *testing.T) {
	p, err := SpotPrice(d("100000"), d("50000"))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Equal(d("500000000000000000")) {
		t.Errorf("expected 0.5 scaled, got %s", p)
	}
}
