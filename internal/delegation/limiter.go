// Package delegation tracks the trading permissions users grant the
// automation agent and enforces their per-trade and rolling daily limits.
//
// The daily window resets lazily: nothing sweeps expired windows, the next
// check after DailyResetTimestamp + Window treats DailySpent as zero.
package delegation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
)

// Window is the length of the daily volume window.
const Window = 24 * time.Hour

var (
	// ErrTradeLimitExceeded is returned when a trade is larger than the
	// per-trade maximum or would push the day's volume past its maximum.
	ErrTradeLimitExceeded = errors.New("delegation: trade limit exceeded")

	// ErrAssetNotAllowed is returned when the sell asset is not in the
	// permission's allowed set.
	ErrAssetNotAllowed = errors.New("delegation: asset not allowed")
)

// Limiter holds one permission per user. It does not lock; callers serialize.
type Limiter struct {
	Window time.Duration
	perms  map[common.Address]*model.TradingPermission
}

// NewLimiter creates a limiter with the given daily window. A non-positive
// window falls back to 24h.
func NewLimiter(window time.Duration) *Limiter {
	if window <= 0 {
		window = Window
	}
	return &Limiter{
		Window: window,
		perms:  make(map[common.Address]*model.TradingPermission),
	}
}

// Delegate replaces user's permission wholesale and starts a fresh daily
// window at now. A zero maxTradeSize revokes all trading.
func (l *Limiter) Delegate(user common.Address, maxTradeSize, maxDailyVolume decimal.Decimal, allowedAssets []string, now time.Time) (model.TradingPermission, error) {
	if err := fixedpoint.Validate(maxTradeSize); err != nil {
		return model.TradingPermission{}, err
	}
	if err := fixedpoint.Validate(maxDailyVolume); err != nil {
		return model.TradingPermission{}, err
	}
	assets := make([]string, 0, len(allowedAssets))
	for _, a := range allowedAssets {
		if !slices.Contains(assets, a) {
			assets = append(assets, a)
		}
	}
	p := &model.TradingPermission{
		User:                user,
		MaxTradeSize:        maxTradeSize,
		MaxDailyVolume:      maxDailyVolume,
		DailySpent:          decimal.Zero,
		DailyResetTimestamp: now,
		AllowedAssets:       assets,
	}
	l.perms[user] = p
	return clone(p), nil
}

// Permission returns user's permission as of now, with DailySpent already
// reset if the window rolled over. ok is false if the user never delegated.
func (l *Limiter) Permission(user common.Address, now time.Time) (model.TradingPermission, bool) {
	p, ok := l.perms[user]
	if !ok {
		return model.TradingPermission{}, false
	}
	cp := clone(p)
	if l.rolledOver(p, now) {
		cp.DailySpent = decimal.Zero
		cp.DailyResetTimestamp = now
	}
	return cp, true
}

// CheckLimit validates a trade of amount selling assetID against user's
// permission without mutating anything. A user with no permission has a
// zero per-trade limit.
//
// Checks run in order: per-trade size, allowed asset, daily volume.
func (l *Limiter) CheckLimit(user common.Address, assetID string, amount decimal.Decimal, now time.Time) error {
	p, ok := l.Permission(user, now)
	if !ok {
		return fmt.Errorf("%w: %s has not delegated trading", ErrTradeLimitExceeded, user.Hex())
	}

	// 1. Per-trade limit.
	if amount.GreaterThan(p.MaxTradeSize) {
		return fmt.Errorf("%w: amount %s > max trade size %s", ErrTradeLimitExceeded, amount, p.MaxTradeSize)
	}

	// 2. Allowed assets.
	if !slices.Contains(p.AllowedAssets, assetID) {
		return fmt.Errorf("%w: %s", ErrAssetNotAllowed, assetID)
	}

	// 3. Daily volume, after any lazy reset.
	projected := p.DailySpent.Add(amount)
	if projected.GreaterThan(p.MaxDailyVolume) {
		return fmt.Errorf("%w: daily volume %s + %s > %s", ErrTradeLimitExceeded, p.DailySpent, amount, p.MaxDailyVolume)
	}
	return nil
}

// Reserve checks the trade and, if it passes, charges amount against the
// user's daily volume.
func (l *Limiter) Reserve(user common.Address, assetID string, amount decimal.Decimal, now time.Time) error {
	if err := l.CheckLimit(user, assetID, amount, now); err != nil {
		return err
	}
	p := l.perms[user]
	if l.rolledOver(p, now) {
		p.DailySpent = decimal.Zero
		p.DailyResetTimestamp = now
	}
	p.DailySpent = p.DailySpent.Add(amount)
	return nil
}

func (l *Limiter) rolledOver(p *model.TradingPermission, now time.Time) bool {
	return !now.Before(p.DailyResetTimestamp.Add(l.Window))
}

func clone(p *model.TradingPermission) model.TradingPermission {
	cp := *p
	cp.AllowedAssets = append([]string(nil), p.AllowedAssets...)
	return cp
}
