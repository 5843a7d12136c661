package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	tok   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	amm   = common.HexToAddress("0x00000000000000000000000000000000000a4400")
)

type recorder struct{ kinds []model.EventKind }

func (r *recorder) Emit(kind model.EventKind, _ common.Address, _ string, _ map[string]string) {
	r.kinds = append(r.kinds, kind)
}

func newBank(t *testing.T) (*Bank, *recorder) {
	t.Helper()
	rec := &recorder{}
	b := NewBank(rec)
	if err := b.Create(tok, "BORDEAUX-2019"); err != nil {
		t.Fatal(err)
	}
	if err := b.Mint(tok, alice, d("1000")); err != nil {
		t.Fatal(err)
	}
	return b, rec
}

func TestMintAndTransfer(t *testing.T) {
	b, rec := newBank(t)

	if err := b.Transfer(tok, alice, bob, d("400")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.BalanceOf(tok, alice).Equal(d("600")) {
		t.Errorf("alice balance = %s, want 600", b.BalanceOf(tok, alice))
	}
	if !b.BalanceOf(tok, bob).Equal(d("400")) {
		t.Errorf("bob balance = %s, want 400", b.BalanceOf(tok, bob))
	}
	if !b.TotalSupply(tok).Equal(d("1000")) {
		t.Errorf("supply changed by transfer: %s", b.TotalSupply(tok))
	}
	if len(rec.kinds) != 2 {
		t.Errorf("expected 2 events (mint, transfer), got %d", len(rec.kinds))
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	b, _ := newBank(t)
	err := b.Transfer(tok, alice, bob, d("1001"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if !b.BalanceOf(tok, alice).Equal(d("1000")) {
		t.Error("failed transfer must not move funds")
	}
}

func TestTransferFrom_ConsumesAllowance(t *testing.T) {
	b, _ := newBank(t)
	if err := b.Approve(tok, alice, amm, d("300")); err != nil {
		t.Fatal(err)
	}
	if err := b.TransferFrom(tok, amm, alice, amm, d("200")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.Allowance(tok, alice, amm).Equal(d("100")) {
		t.Errorf("allowance = %s, want 100", b.Allowance(tok, alice, amm))
	}
	err := b.TransferFrom(tok, amm, alice, amm, d("101"))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestBurnFrom_ReducesSupply(t *testing.T) {
	b, _ := newBank(t)
	if err := b.Approve(tok, alice, amm, d("250")); err != nil {
		t.Fatal(err)
	}
	if err := b.BurnFrom(tok, amm, alice, d("250")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.TotalSupply(tok).Equal(d("750")) {
		t.Errorf("supply = %s, want 750", b.TotalSupply(tok))
	}
	if !b.BalanceOf(tok, alice).Equal(d("750")) {
		t.Errorf("balance = %s, want 750", b.BalanceOf(tok, alice))
	}
}

func TestSupplyEqualsSumOfBalances(t *testing.T) {
	b, _ := newBank(t)
	_ = b.Transfer(tok, alice, bob, d("123"))
	_ = b.Approve(tok, bob, amm, d("23"))
	_ = b.BurnFrom(tok, amm, bob, d("23"))

	sum := decimal.Zero
	for _, bal := range b.Holders(tok) {
		sum = sum.Add(bal)
	}
	if !sum.Equal(b.TotalSupply(tok)) {
		t.Errorf("sum of balances %s != supply %s", sum, b.TotalSupply(tok))
	}
}

func TestUnknownToken(t *testing.T) {
	b := NewBank(nil)
	if err := b.Transfer(tok, alice, bob, d("1")); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
	if !b.BalanceOf(tok, alice).IsZero() {
		t.Error("unknown token balance should be zero")
	}
}

func TestRejectsFractionalAmount(t *testing.T) {
	b, _ := newBank(t)
	if err := b.Transfer(tok, alice, bob, d("0.5")); err == nil {
		t.Error("expected error for fractional amount")
	}
}
