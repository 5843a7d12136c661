package delegation

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	user = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	t0   = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
)

func newLimiter(t *testing.T) *Limiter {
	t.Helper()
	l := NewLimiter(0)
	if _, err := l.Delegate(user, d("1000"), d("2500"), []string{"BORDEAUX-2019", "MARGAUX-2015"}, t0); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	l := newLimiter(t)
	if err := l.CheckLimit(user, "BORDEAUX-2019", d("1000"), t0); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_TradeSizeBeatsDailyHeadroom(t *testing.T) {
	l := newLimiter(t)
	// Daily volume would allow 1001, per-trade size does not.
	err := l.CheckLimit(user, "BORDEAUX-2019", d("1001"), t0)
	if !errors.Is(err, ErrTradeLimitExceeded) {
		t.Errorf("expected ErrTradeLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_AssetNotAllowed(t *testing.T) {
	l := newLimiter(t)
	err := l.CheckLimit(user, "WHISKY-1990", d("10"), t0)
	if !errors.Is(err, ErrAssetNotAllowed) {
		t.Errorf("expected ErrAssetNotAllowed, got %v", err)
	}
}

func TestCheckLimit_NoPermission(t *testing.T) {
	l := NewLimiter(0)
	err := l.CheckLimit(user, "BORDEAUX-2019", d("1"), t0)
	if !errors.Is(err, ErrTradeLimitExceeded) {
		t.Errorf("expected ErrTradeLimitExceeded, got %v", err)
	}
}

func TestReserve_DailyVolume(t *testing.T) {
	l := newLimiter(t)

	for i := 0; i < 2; i++ {
		if err := l.Reserve(user, "BORDEAUX-2019", d("1000"), t0.Add(time.Hour)); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	// 2000 spent + 501 > 2500.
	err := l.Reserve(user, "MARGAUX-2015", d("501"), t0.Add(2*time.Hour))
	if !errors.Is(err, ErrTradeLimitExceeded) {
		t.Errorf("expected ErrTradeLimitExceeded, got %v", err)
	}
	// Exactly at the limit is allowed.
	if err := l.Reserve(user, "MARGAUX-2015", d("500"), t0.Add(2*time.Hour)); err != nil {
		t.Errorf("expected 500 to fit exactly, got %v", err)
	}
}

func TestReserve_LazyReset(t *testing.T) {
	l := newLimiter(t)
	_ = l.Reserve(user, "BORDEAUX-2019", d("1000"), t0)
	_ = l.Reserve(user, "BORDEAUX-2019", d("1000"), t0)

	// Just before the window closes the old spend still counts.
	if err := l.CheckLimit(user, "BORDEAUX-2019", d("1000"), t0.Add(Window-time.Second)); !errors.Is(err, ErrTradeLimitExceeded) {
		t.Errorf("expected ErrTradeLimitExceeded before reset, got %v", err)
	}

	later := t0.Add(Window)
	if err := l.Reserve(user, "BORDEAUX-2019", d("1000"), later); err != nil {
		t.Fatalf("expected reset at window end, got %v", err)
	}
	p, _ := l.Permission(user, later)
	if !p.DailySpent.Equal(d("1000")) || !p.DailyResetTimestamp.Equal(later) {
		t.Errorf("after reset: spent=%s reset=%s", p.DailySpent, p.DailyResetTimestamp)
	}
}

func TestDelegate_OverwritesAndResets(t *testing.T) {
	l := newLimiter(t)
	_ = l.Reserve(user, "BORDEAUX-2019", d("1000"), t0)

	p, err := l.Delegate(user, decimal.Zero, d("2500"), []string{"BORDEAUX-2019"}, t0.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !p.DailySpent.IsZero() {
		t.Errorf("re-delegation should clear daily spend, got %s", p.DailySpent)
	}
	// Zero max trade size revokes.
	if err := l.CheckLimit(user, "BORDEAUX-2019", d("1"), t0.Add(time.Minute)); !errors.Is(err, ErrTradeLimitExceeded) {
		t.Errorf("expected revoked permission to reject, got %v", err)
	}
}
