// Package automation lets a designated agent queue and execute trades on a
// user's behalf, within the limits the user delegated.
//
// The engine reaches the registry, the AMM and the token bank only through
// the interfaces below, injected at construction.
package automation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/delegation"
	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
)

// Address is the automation engine's spender identity. Users approve it for
// the sell token before a queued trade can execute.
var Address = common.BytesToAddress(crypto.Keccak256([]byte("rwa-engine/automation"))[12:])

var (
	ErrOnlyAIAgent     = errors.New("automation: caller is not the AI agent")
	ErrTokenNotFound   = errors.New("automation: asset not tokenized")
	ErrTradeNotFound   = errors.New("automation: trade not found")
	ErrTradeExpired    = errors.New("automation: trade expired")
	ErrTradeNotPending = errors.New("automation: trade is not pending")
	ErrZeroAmount      = errors.New("automation: amount must be positive")
	ErrIdenticalAssets = errors.New("automation: sell and buy asset are the same token")
	ErrNotTradeOwner   = errors.New("automation: caller may not cancel this trade")
	ErrTradeNotExpired = errors.New("automation: trade deadline has not passed")
)

// Resolver maps (platform, assetId) to the issued token.
type Resolver interface {
	GetTokenAddress(platform, assetID string) (common.Address, bool)
}

// Swapper executes swaps. QuoteSwap must fail exactly when SwapTo would.
type Swapper interface {
	QuoteSwap(tokenIn, tokenOut common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, error)
	SwapTo(payer, recipient, tokenIn, tokenOut common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, error)
}

// Bank moves tokens under allowance.
type Bank interface {
	CheckTransferFrom(tok, spender, from common.Address, amount decimal.Decimal) error
	TransferFrom(tok, spender, from, to common.Address, amount decimal.Decimal) error
	Approve(tok, owner, spender common.Address, amount decimal.Decimal) error
}

// QueueParams describes a trade the agent wants to place for a user.
type QueueParams struct {
	User         common.Address  `json:"user"`
	SellPlatform string          `json:"sell_platform"`
	SellAsset    string          `json:"sell_asset"`
	BuyPlatform  string          `json:"buy_platform"`
	BuyAsset     string          `json:"buy_asset"`
	Amount       decimal.Decimal `json:"amount"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	Deadline     time.Time       `json:"deadline"`
}

// Engine is the delegated automation engine. It does not lock; the ledger
// serializes every call.
type Engine struct {
	resolver   Resolver
	swapper    Swapper
	bank       Bank
	ammSpender common.Address
	limiter    *delegation.Limiter
	emit       model.Emitter
	now        model.Clock
	principals model.Principals

	trades map[common.Hash]*model.QueuedTrade
	byUser map[common.Address][]common.Hash
	nonce  uint64
}

// New creates an automation engine. ammSpender is the address the AMM pulls
// swap input with.
func New(resolver Resolver, swapper Swapper, bank Bank, ammSpender common.Address, limiter *delegation.Limiter, emit model.Emitter, now model.Clock, p model.Principals) *Engine {
	return &Engine{
		resolver:   resolver,
		swapper:    swapper,
		bank:       bank,
		ammSpender: ammSpender,
		limiter:    limiter,
		emit:       emit,
		now:        now,
		principals: p,
		trades:     make(map[common.Hash]*model.QueuedTrade),
		byUser:     make(map[common.Address][]common.Hash),
	}
}

// DelegateTrading replaces caller's trading permission.
func (e *Engine) DelegateTrading(caller common.Address, maxTradeSize, maxDailyVolume decimal.Decimal, allowedAssets []string) (model.TradingPermission, error) {
	p, err := e.limiter.Delegate(caller, maxTradeSize, maxDailyVolume, allowedAssets, e.now())
	if err != nil {
		return model.TradingPermission{}, err
	}
	e.emit.Emit(model.EventTradingDelegated, caller, caller.Hex(), map[string]string{
		"max_trade_size":   maxTradeSize.String(),
		"max_daily_volume": maxDailyVolume.String(),
		"allowed_assets":   fmt.Sprint(p.AllowedAssets),
	})
	return p, nil
}

// Permission returns user's current permission.
func (e *Engine) Permission(user common.Address) (model.TradingPermission, bool) {
	return e.limiter.Permission(user, e.now())
}

// QueueAutomatedTrade records a pending trade and reserves its amount against
// the user's daily volume immediately. The reservation is not returned if the
// trade later expires or is cancelled.
func (e *Engine) QueueAutomatedTrade(caller common.Address, q QueueParams) (model.QueuedTrade, error) {
	if caller != e.principals.Agent {
		return model.QueuedTrade{}, ErrOnlyAIAgent
	}
	if err := fixedpoint.Validate(q.Amount); err != nil {
		return model.QueuedTrade{}, err
	}
	if err := fixedpoint.Validate(q.MinAmountOut); err != nil {
		return model.QueuedTrade{}, err
	}
	if !q.Amount.IsPositive() {
		return model.QueuedTrade{}, ErrZeroAmount
	}
	sellToken, ok := e.resolver.GetTokenAddress(q.SellPlatform, q.SellAsset)
	if !ok {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s/%s", ErrTokenNotFound, q.SellPlatform, q.SellAsset)
	}
	buyToken, ok := e.resolver.GetTokenAddress(q.BuyPlatform, q.BuyAsset)
	if !ok {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s/%s", ErrTokenNotFound, q.BuyPlatform, q.BuyAsset)
	}
	if sellToken == buyToken {
		return model.QueuedTrade{}, ErrIdenticalAssets
	}

	now := e.now()
	if err := e.limiter.CheckLimit(q.User, q.SellAsset, q.Amount, now); err != nil {
		return model.QueuedTrade{}, err
	}
	if q.Deadline.Before(now) {
		return model.QueuedTrade{}, fmt.Errorf("%w: deadline %s already passed", ErrTradeExpired, q.Deadline.Format(time.RFC3339))
	}
	if err := e.limiter.Reserve(q.User, q.SellAsset, q.Amount, now); err != nil {
		return model.QueuedTrade{}, err
	}

	e.nonce++
	t := &model.QueuedTrade{
		User:         q.User,
		SellPlatform: q.SellPlatform,
		SellAsset:    q.SellAsset,
		BuyPlatform:  q.BuyPlatform,
		BuyAsset:     q.BuyAsset,
		SellToken:    sellToken,
		BuyToken:     buyToken,
		Amount:       q.Amount,
		MinAmountOut: q.MinAmountOut,
		Deadline:     q.Deadline,
		Status:       model.TradePending,
		Nonce:        e.nonce,
		QueuedAt:     now,
		AmountOut:    decimal.Zero,
	}
	t.TradeID = tradeID(t)
	e.trades[t.TradeID] = t
	e.byUser[t.User] = append(e.byUser[t.User], t.TradeID)

	e.emit.Emit(model.EventTradeQueued, caller, t.TradeID.Hex(), map[string]string{
		"user":           t.User.Hex(),
		"sell":           t.SellPlatform + "/" + t.SellAsset,
		"buy":            t.BuyPlatform + "/" + t.BuyAsset,
		"amount":         t.Amount.String(),
		"min_amount_out": t.MinAmountOut.String(),
		"deadline":       t.Deadline.UTC().Format(time.RFC3339),
	})
	return *t, nil
}

// tradeID hashes the submission contents with the engine nonce.
func tradeID(t *model.QueuedTrade) common.Hash {
	var nonce, deadline [8]byte
	binary.BigEndian.PutUint64(nonce[:], t.Nonce)
	binary.BigEndian.PutUint64(deadline[:], uint64(t.Deadline.Unix()))
	return crypto.Keccak256Hash(
		t.User.Bytes(),
		t.SellToken.Bytes(),
		t.BuyToken.Bytes(),
		[]byte(t.Amount.String()),
		[]byte(t.MinAmountOut.String()),
		deadline[:],
		nonce[:],
	)
}

// ExecuteAutomatedTrade pulls the sell amount from the user, swaps it with the
// stored minimum and sends the output to the user. Every check, including the
// AMM quote, runs before any token moves.
func (e *Engine) ExecuteAutomatedTrade(caller common.Address, id common.Hash) (model.QueuedTrade, error) {
	if caller != e.principals.Agent {
		return model.QueuedTrade{}, ErrOnlyAIAgent
	}
	t, ok := e.trades[id]
	if !ok {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id.Hex())
	}
	if t.Status != model.TradePending {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s is %s", ErrTradeNotPending, id.Hex(), t.Status)
	}
	now := e.now()
	if now.After(t.Deadline) {
		return model.QueuedTrade{}, fmt.Errorf("%w: deadline %s", ErrTradeExpired, t.Deadline.Format(time.RFC3339))
	}

	if _, err := e.swapper.QuoteSwap(t.SellToken, t.BuyToken, t.Amount, t.MinAmountOut); err != nil {
		return model.QueuedTrade{}, err
	}
	if err := e.bank.CheckTransferFrom(t.SellToken, Address, t.User, t.Amount); err != nil {
		return model.QueuedTrade{}, err
	}

	if err := e.bank.TransferFrom(t.SellToken, Address, t.User, Address, t.Amount); err != nil {
		return model.QueuedTrade{}, err
	}
	if err := e.bank.Approve(t.SellToken, Address, e.ammSpender, t.Amount); err != nil {
		return model.QueuedTrade{}, err
	}
	out, err := e.swapper.SwapTo(Address, t.User, t.SellToken, t.BuyToken, t.Amount, t.MinAmountOut)
	if err != nil {
		return model.QueuedTrade{}, err
	}

	t.Status = model.TradeExecuted
	t.ExecutedAt = now
	t.AmountOut = out
	e.emit.Emit(model.EventTradeExecuted, caller, t.TradeID.Hex(), map[string]string{
		"user":       t.User.Hex(),
		"amount_in":  t.Amount.String(),
		"amount_out": out.String(),
	})
	return *t, nil
}

// CancelTrade cancels a pending trade. The agent or the trade's user may
// cancel.
func (e *Engine) CancelTrade(caller common.Address, id common.Hash) (model.QueuedTrade, error) {
	t, ok := e.trades[id]
	if !ok {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id.Hex())
	}
	if caller != e.principals.Agent && caller != t.User {
		return model.QueuedTrade{}, ErrNotTradeOwner
	}
	if t.Status != model.TradePending {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s is %s", ErrTradeNotPending, id.Hex(), t.Status)
	}
	t.Status = model.TradeCancelled
	e.emit.Emit(model.EventTradeStatus, caller, t.TradeID.Hex(), map[string]string{
		"status": string(t.Status),
	})
	return *t, nil
}

// ExpireTrade marks a pending trade whose deadline has passed as expired.
// Anyone may call it.
func (e *Engine) ExpireTrade(caller common.Address, id common.Hash) (model.QueuedTrade, error) {
	t, ok := e.trades[id]
	if !ok {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id.Hex())
	}
	if t.Status != model.TradePending {
		return model.QueuedTrade{}, fmt.Errorf("%w: %s is %s", ErrTradeNotPending, id.Hex(), t.Status)
	}
	if !e.now().After(t.Deadline) {
		return model.QueuedTrade{}, ErrTradeNotExpired
	}
	t.Status = model.TradeExpired
	e.emit.Emit(model.EventTradeStatus, caller, t.TradeID.Hex(), map[string]string{
		"status": string(t.Status),
	})
	return *t, nil
}

// GetTrade returns a copy of a queued trade.
func (e *Engine) GetTrade(id common.Hash) (model.QueuedTrade, bool) {
	t, ok := e.trades[id]
	if !ok {
		return model.QueuedTrade{}, false
	}
	return *t, true
}

// TradesByUser returns user's trades, oldest first.
func (e *Engine) TradesByUser(user common.Address) []model.QueuedTrade {
	ids := e.byUser[user]
	out := make([]model.QueuedTrade, 0, len(ids))
	for _, id := range ids {
		out = append(out, *e.trades[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out
}
