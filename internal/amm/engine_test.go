package amm

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/cpmm"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/token"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	tokA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	tokD = common.HexToAddress("0x000000000000000000000000000000000000000d")

	lp1        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	lp2        = common.HexToAddress("0x2222222222222222222222222222222222222222")
	trader     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	governance = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

type bankTokens struct{ *token.Bank }

func (b bankTokens) IsToken(addr common.Address) bool { return b.Exists(addr) }

// newTestEnv creates an engine over four tokens. Every test account holds a
// large balance of each and has approved the AMM for all of it.
func newTestEnv(t *testing.T) (*Engine, *token.Bank) {
	t.Helper()
	bank := token.NewBank(nil)
	big := d("1000000000")
	for _, tok := range []common.Address{tokA, tokB, tokC, tokD} {
		if err := bank.Create(tok, tok.Hex()); err != nil {
			t.Fatal(err)
		}
		for _, who := range []common.Address{lp1, lp2, trader} {
			if err := bank.Mint(tok, who, big); err != nil {
				t.Fatal(err)
			}
			if err := bank.Approve(tok, who, Address, big); err != nil {
				t.Fatal(err)
			}
		}
	}
	clock := func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	e := New(bank, bankTokens{bank}, model.NopEmitter{}, clock, model.Principals{Governance: governance}, DefaultConfig())
	return e, bank
}

// seedPool creates an A/B-style pool and deposits the given amounts from lp1.
func seedPool(t *testing.T, e *Engine, a, b common.Address, amtA, amtB string) {
	t.Helper()
	if _, err := e.CreatePoolDefaultFee(lp1, a, b); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddLiquidity(lp1, a, b, d(amtA), d(amtB), decimal.Zero, decimal.Zero); err != nil {
		t.Fatal(err)
	}
}

// --- Pool creation ---

func TestCreatePool_Canonicalization(t *testing.T) {
	e, _ := newTestEnv(t)

	p, err := e.CreatePool(lp1, tokB, tokA, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Token0 != tokA || p.Token1 != tokB {
		t.Errorf("pair not canonical: %s/%s", p.Token0.Hex(), p.Token1.Hex())
	}
	if _, err := e.CreatePool(lp1, tokA, tokB, 30); !errors.Is(err, ErrPoolExists) {
		t.Errorf("expected ErrPoolExists, got %v", err)
	}
	if _, err := e.CreatePool(lp1, tokB, tokA, 5); !errors.Is(err, ErrPoolExists) {
		t.Errorf("expected ErrPoolExists for reversed order, got %v", err)
	}
	other, _ := e.GetPool(tokA, tokB)
	if other.ID != p.ID || PoolID(tokA, tokB) != PoolID(tokB, tokA) {
		t.Error("both orders must resolve to the same pool")
	}
}

func TestCreatePool_Validation(t *testing.T) {
	e, _ := newTestEnv(t)

	if _, err := e.CreatePool(lp1, tokA, tokA, 30); !errors.Is(err, ErrIdenticalTokens) {
		t.Errorf("expected ErrIdenticalTokens, got %v", err)
	}
	if _, err := e.CreatePool(lp1, tokA, tokB, 1001); !errors.Is(err, ErrFeeTooHigh) {
		t.Errorf("expected ErrFeeTooHigh, got %v", err)
	}
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	if _, err := e.CreatePool(lp1, tokA, unknown, 30); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := e.CreatePool(lp1, tokA, tokB, 1000); err != nil {
		t.Errorf("fee at ceiling should be accepted: %v", err)
	}
}

// --- Swap ---

func TestSwap_Scenario(t *testing.T) {
	e, bank := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "100000", "50000")

	before, _ := e.GetPool(tokA, tokB)
	balBefore := bank.BalanceOf(tokB, trader)

	out, err := e.Swap(trader, tokA, tokB, d("1000"), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsPositive() || !out.LessThan(d("500")) {
		t.Errorf("output %s should be in (0, 500)", out)
	}
	if !bank.BalanceOf(tokB, trader).Sub(balBefore).Equal(out) {
		t.Error("trader not credited the swap output")
	}

	after, _ := e.GetPool(tokA, tokB)
	kBefore := cpmm.Invariant(before.Reserve0, before.Reserve1)
	kAfter := cpmm.Invariant(after.Reserve0, after.Reserve1)
	if !kAfter.GreaterThan(kBefore) {
		t.Errorf("k must strictly increase with a fee: %s -> %s", kBefore, kAfter)
	}
	if !after.Reserve0.Equal(d("101000")) || !after.Reserve1.Equal(d("50000").Sub(out)) {
		t.Errorf("reserves = %s/%s", after.Reserve0, after.Reserve1)
	}
}

func TestSwap_ReverseDirectionUsesCanonicalReserves(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokB, tokA, "50000", "100000") // same pool as A/B 100000/50000

	p, _ := e.GetPool(tokA, tokB)
	if !p.Reserve0.Equal(d("100000")) || !p.Reserve1.Equal(d("50000")) {
		t.Fatalf("reserves not stored canonically: %s/%s", p.Reserve0, p.Reserve1)
	}
	quote, ok := e.GetAmountOut(tokA, tokB, d("1000"))
	if !ok {
		t.Fatal("pool should exist")
	}
	out, err := e.Swap(trader, tokA, tokB, d("1000"), quote)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Equal(quote) {
		t.Errorf("swap %s differs from quote %s", out, quote)
	}
}

func TestSwap_Failures(t *testing.T) {
	e, bank := newTestEnv(t)

	if _, err := e.Swap(trader, tokA, tokB, d("1"), decimal.Zero); !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("expected ErrPoolNotFound, got %v", err)
	}

	if _, err := e.CreatePool(lp1, tokA, tokB, 30); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Swap(trader, tokA, tokB, d("1"), decimal.Zero); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity on empty pool, got %v", err)
	}

	if _, err := e.AddLiquidity(lp1, tokA, tokB, d("100000"), d("50000"), decimal.Zero, decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Swap(trader, tokA, tokB, decimal.Zero, decimal.Zero); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("expected ErrZeroAmount, got %v", err)
	}

	balA := bank.BalanceOf(tokA, trader)
	before, _ := e.GetPool(tokA, tokB)
	if _, err := e.Swap(trader, tokA, tokB, d("1000"), d("494")); !errors.Is(err, ErrInsufficientOutput) {
		t.Errorf("expected ErrInsufficientOutput, got %v", err)
	}
	after, _ := e.GetPool(tokA, tokB)
	if !after.Reserve0.Equal(before.Reserve0) || !bank.BalanceOf(tokA, trader).Equal(balA) {
		t.Error("failed swap must not mutate state")
	}
}

func TestGetAmountOut_NoPool(t *testing.T) {
	e, _ := newTestEnv(t)
	out, ok := e.GetAmountOut(tokA, tokB, d("1000"))
	if ok || !out.IsZero() {
		t.Errorf("expected (0, false), got (%s, %v)", out, ok)
	}
}

// --- Liquidity ---

func TestLiquidity_ProportionalRoundTrip(t *testing.T) {
	e, bank := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "100000", "50000")

	pool, _ := e.GetPool(tokA, tokB)
	if !pool.TotalLiquidity.Equal(d("70710")) {
		t.Fatalf("initial shares = %s, want 70710", pool.TotalLiquidity)
	}

	balA, balB := bank.BalanceOf(tokA, lp2), bank.BalanceOf(tokB, lp2)
	res, err := e.AddLiquidity(lp2, tokA, tokB, d("10000"), d("5000"), d("10000"), d("5000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 10% deposit at the current ratio mints 10% of existing shares.
	if !res.Liquidity.Equal(d("7071")) {
		t.Errorf("minted %s shares, want 7071", res.Liquidity)
	}

	out, err := e.RemoveLiquidity(lp2, tokA, tokB, res.Liquidity, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if !out.AmountA.Equal(d("10000")) || !out.AmountB.Equal(d("5000")) {
		t.Errorf("round trip returned %s/%s, want 10000/5000", out.AmountA, out.AmountB)
	}
	if !bank.BalanceOf(tokA, lp2).Equal(balA) || !bank.BalanceOf(tokB, lp2).Equal(balB) {
		t.Error("provider balances not restored")
	}
	if !e.LiquidityOf(tokA, tokB, lp2).IsZero() {
		t.Error("provider should hold no shares")
	}
}

func TestLiquidity_SharesSumToTotal(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "100000", "50000")
	_, _ = e.AddLiquidity(lp2, tokA, tokB, d("3000"), d("9000"), decimal.Zero, decimal.Zero)
	_, _ = e.Swap(trader, tokB, tokA, d("777"), decimal.Zero)
	_, _ = e.AddLiquidity(trader, tokA, tokB, d("500"), d("500"), decimal.Zero, decimal.Zero)

	pool, _ := e.GetPool(tokA, tokB)
	sum := decimal.Zero
	for _, b := range e.LiquidityProviders(pool.ID) {
		sum = sum.Add(b.Shares)
	}
	if !sum.Equal(pool.TotalLiquidity) {
		t.Errorf("LP balances %s != total liquidity %s", sum, pool.TotalLiquidity)
	}
}

func TestAddLiquidity_Slippage(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "100000", "50000")

	// Optimal B for 10000 A is 5000, below the 6000 minimum.
	_, err := e.AddLiquidity(lp2, tokA, tokB, d("10000"), d("10000"), decimal.Zero, d("6000"))
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Errorf("expected ErrSlippageExceeded, got %v", err)
	}

	// B is recomputed to 500, but A stays at its desired 1000, below 5000.
	_, err = e.AddLiquidity(lp2, tokA, tokB, d("1000"), d("500"), d("5000"), decimal.Zero)
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Errorf("kept side below min: expected ErrSlippageExceeded, got %v", err)
	}
}

func TestAddLiquidity_FirstDepositChecksMinimums(t *testing.T) {
	e, _ := newTestEnv(t)
	if _, err := e.CreatePoolDefaultFee(lp1, tokA, tokB); err != nil {
		t.Fatal(err)
	}

	_, err := e.AddLiquidity(lp1, tokA, tokB, d("100"), d("100"), d("1000"), d("1000"))
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	p, ok := e.GetPool(tokA, tokB)
	if !ok {
		t.Fatal("pool not found")
	}
	if !p.TotalLiquidity.IsZero() {
		t.Errorf("rejected deposit minted %s shares", p.TotalLiquidity)
	}

	if _, err := e.AddLiquidity(lp1, tokA, tokB, d("100"), d("100"), d("100"), d("100")); err != nil {
		t.Errorf("deposit meeting its minimums: %v", err)
	}
}

func TestRemoveLiquidity_Failures(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "100000", "50000")

	if _, err := e.RemoveLiquidity(lp2, tokA, tokB, d("1"), decimal.Zero, decimal.Zero); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if _, err := e.RemoveLiquidity(lp1, tokA, tokB, d("7071"), d("10001"), decimal.Zero); !errors.Is(err, ErrSlippageExceeded) {
		t.Errorf("expected ErrSlippageExceeded, got %v", err)
	}
}

// --- Routing ---

func TestFindBestRoute_PrefersDeeperMultiHop(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "1000", "1000")
	seedPool(t, e, tokA, tokC, "1000000", "1000000")
	seedPool(t, e, tokC, tokB, "1000000", "1000000")

	direct, _ := e.GetAmountOut(tokA, tokB, d("100"))
	route := e.FindBestRoute(tokA, tokB, d("100"))

	if len(route.Path) != 3 || route.Path[1] != tokC {
		t.Fatalf("expected route A->C->B, got %v", route.Path)
	}
	if !route.AmountOut.GreaterThan(direct) {
		t.Errorf("route output %s should beat direct %s", route.AmountOut, direct)
	}

	out, err := e.SwapExactPath(trader, route.Path, d("100"), route.AmountOut)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Equal(route.AmountOut) {
		t.Errorf("executed %s, quoted %s", out, route.AmountOut)
	}
}

func TestFindBestRoute_DirectWhenBest(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "1000000", "1000000")
	seedPool(t, e, tokA, tokC, "1000", "1000")
	seedPool(t, e, tokC, tokB, "1000", "1000")

	route := e.FindBestRoute(tokA, tokB, d("100"))
	if len(route.Path) != 2 {
		t.Errorf("expected direct route, got %v", route.Path)
	}
}

func TestFindBestRoute_NoRoute(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "1000", "1000")

	route := e.FindBestRoute(tokA, tokD, d("100"))
	if len(route.Path) != 0 || !route.AmountOut.IsZero() {
		t.Errorf("expected empty route, got %v / %s", route.Path, route.AmountOut)
	}
}

// --- Governance ---

func TestSetDefaultSwapFee(t *testing.T) {
	e, _ := newTestEnv(t)

	if err := e.SetDefaultSwapFee(lp1, 50); !errors.Is(err, ErrOnlyGovernance) {
		t.Errorf("expected ErrOnlyGovernance, got %v", err)
	}
	if err := e.SetDefaultSwapFee(governance, 2000); !errors.Is(err, ErrFeeTooHigh) {
		t.Errorf("expected ErrFeeTooHigh, got %v", err)
	}
	if err := e.SetDefaultSwapFee(governance, 50); err != nil {
		t.Fatal(err)
	}
	p, _ := e.CreatePoolDefaultFee(lp1, tokA, tokB)
	if p.SwapFeeBps != 50 {
		t.Errorf("pool fee = %d, want 50", p.SwapFeeBps)
	}
}

func TestInactivePool_BlocksSwapsNotWithdrawals(t *testing.T) {
	e, _ := newTestEnv(t)
	seedPool(t, e, tokA, tokB, "100000", "50000")

	if err := e.SetPoolActive(governance, tokA, tokB, false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Swap(trader, tokA, tokB, d("1000"), decimal.Zero); !errors.Is(err, ErrPoolInactive) {
		t.Errorf("expected ErrPoolInactive, got %v", err)
	}
	if _, err := e.RemoveLiquidity(lp1, tokA, tokB, d("1000"), decimal.Zero, decimal.Zero); err != nil {
		t.Errorf("withdrawal from inactive pool should succeed: %v", err)
	}
}
