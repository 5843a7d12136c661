// Package amm implements the constant-product pool engine: pool creation,
// liquidity provision, swaps, multi-hop routing and fee governance.
//
// Pools hold their tokens at Address in the shared token bank. Engine does
// not lock; the ledger serializes every call.
package amm

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/cpmm"
	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/token"
)

// Address is the AMM's spender identity and the custody address of all pool
// reserves.
var Address = common.BytesToAddress(crypto.Keccak256([]byte("rwa-engine/amm"))[12:])

var (
	ErrIdenticalTokens       = errors.New("amm: identical tokens")
	ErrPoolExists            = errors.New("amm: pool already exists")
	ErrPoolNotFound          = errors.New("amm: pool not found")
	ErrPoolInactive          = errors.New("amm: pool is inactive")
	ErrFeeTooHigh            = errors.New("amm: swap fee above ceiling")
	ErrSlippageExceeded      = errors.New("amm: slippage exceeded")
	ErrInsufficientOutput    = errors.New("amm: insufficient output amount")
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrTokenNotFound         = errors.New("amm: token not issued by registry")
	ErrOnlyGovernance        = errors.New("amm: caller is not governance")
	ErrZeroAmount            = errors.New("amm: amount must be positive")
	ErrInvalidPath           = errors.New("amm: invalid swap path")
)

// Config holds the engine's fee and routing parameters.
type Config struct {
	MaxFeeBps     uint16
	DefaultFeeBps uint16
	MaxHops       int
}

// DefaultConfig returns a 10% fee ceiling, 0.3% default fee and 3-hop routing.
func DefaultConfig() Config {
	return Config{MaxFeeBps: 1000, DefaultFeeBps: 30, MaxHops: 3}
}

// TokenSource reports which addresses are registry-issued tokens.
type TokenSource interface {
	IsToken(addr common.Address) bool
}

// LiquidityResult is returned by AddLiquidity and RemoveLiquidity. Amounts
// are in the caller's (tokenA, tokenB) order.
type LiquidityResult struct {
	PoolID    common.Hash     `json:"pool_id"`
	AmountA   decimal.Decimal `json:"amount_a"`
	AmountB   decimal.Decimal `json:"amount_b"`
	Liquidity decimal.Decimal `json:"liquidity"`
}

// Engine is the AMM pool engine.
type Engine struct {
	bank       *token.Bank
	tokens     TokenSource
	emit       model.Emitter
	now        model.Clock
	principals model.Principals
	cfg        Config

	pools     map[common.Hash]*model.Pool
	lp        map[common.Hash]map[common.Address]decimal.Decimal
	adjacency map[common.Address][]common.Hash
	order     []common.Hash
}

// New creates an engine with no pools.
func New(bank *token.Bank, tokens TokenSource, emit model.Emitter, now model.Clock, p model.Principals, cfg Config) *Engine {
	if cfg.MaxHops < 1 {
		cfg.MaxHops = 1
	}
	return &Engine{
		bank:       bank,
		tokens:     tokens,
		emit:       emit,
		now:        now,
		principals: p,
		cfg:        cfg,
		pools:      make(map[common.Hash]*model.Pool),
		lp:         make(map[common.Hash]map[common.Address]decimal.Decimal),
		adjacency:  make(map[common.Address][]common.Hash),
	}
}

// SortTokens orders a pair canonically by byte comparison.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// PoolID returns the identity of the pool for a pair, in either order.
func PoolID(a, b common.Address) common.Hash {
	t0, t1 := SortTokens(a, b)
	return crypto.Keccak256Hash(t0.Bytes(), t1.Bytes())
}

// CreatePool creates an empty active pool for (tokenA, tokenB).
func (e *Engine) CreatePool(caller, tokenA, tokenB common.Address, feeBps uint16) (model.Pool, error) {
	if tokenA == tokenB {
		return model.Pool{}, ErrIdenticalTokens
	}
	id := PoolID(tokenA, tokenB)
	if _, ok := e.pools[id]; ok {
		return model.Pool{}, fmt.Errorf("%w: %s", ErrPoolExists, id.Hex())
	}
	if feeBps > e.cfg.MaxFeeBps {
		return model.Pool{}, fmt.Errorf("%w: %d > %d bps", ErrFeeTooHigh, feeBps, e.cfg.MaxFeeBps)
	}
	for _, t := range []common.Address{tokenA, tokenB} {
		if !e.tokens.IsToken(t) {
			return model.Pool{}, fmt.Errorf("%w: %s", ErrTokenNotFound, t.Hex())
		}
	}

	t0, t1 := SortTokens(tokenA, tokenB)
	p := &model.Pool{
		ID:             id,
		Token0:         t0,
		Token1:         t1,
		Reserve0:       decimal.Zero,
		Reserve1:       decimal.Zero,
		TotalLiquidity: decimal.Zero,
		SwapFeeBps:     feeBps,
		IsActive:       true,
		CreatedAt:      e.now(),
	}
	e.pools[id] = p
	e.lp[id] = make(map[common.Address]decimal.Decimal)
	e.adjacency[t0] = append(e.adjacency[t0], id)
	e.adjacency[t1] = append(e.adjacency[t1], id)
	e.order = append(e.order, id)

	e.emit.Emit(model.EventPoolCreated, caller, id.Hex(), map[string]string{
		"token0":  t0.Hex(),
		"token1":  t1.Hex(),
		"fee_bps": fmt.Sprint(feeBps),
	})
	return *p, nil
}

// CreatePoolDefaultFee creates a pool charging the current default fee.
func (e *Engine) CreatePoolDefaultFee(caller, tokenA, tokenB common.Address) (model.Pool, error) {
	return e.CreatePool(caller, tokenA, tokenB, e.cfg.DefaultFeeBps)
}

// AddLiquidity deposits a ratio-preserving pair and mints LP shares to caller.
// Both tokens are pulled with the allowance granted to Address.
func (e *Engine) AddLiquidity(caller, tokenA, tokenB common.Address, aDesired, bDesired, aMin, bMin decimal.Decimal) (LiquidityResult, error) {
	p, err := e.pool(tokenA, tokenB)
	if err != nil {
		return LiquidityResult{}, err
	}
	if !p.IsActive {
		return LiquidityResult{}, ErrPoolInactive
	}
	for _, v := range []decimal.Decimal{aDesired, bDesired, aMin, bMin} {
		if err := fixedpoint.Validate(v); err != nil {
			return LiquidityResult{}, err
		}
	}
	if !aDesired.IsPositive() || !bDesired.IsPositive() {
		return LiquidityResult{}, ErrZeroAmount
	}

	rA, rB := reservesFor(p, tokenA)
	amountA, amountB, err := optimalAmounts(rA, rB, aDesired, bDesired, aMin, bMin)
	if err != nil {
		return LiquidityResult{}, err
	}

	var shares decimal.Decimal
	if p.TotalLiquidity.IsZero() {
		shares = cpmm.InitialShares(amountA, amountB)
	} else {
		shares, err = cpmm.MintShares(amountA, amountB, rA, rB, p.TotalLiquidity)
		if err != nil {
			return LiquidityResult{}, fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
		}
	}
	if !shares.IsPositive() {
		return LiquidityResult{}, fmt.Errorf("%w: deposit mints zero shares", ErrInsufficientLiquidity)
	}

	if err := e.bank.CheckTransferFrom(tokenA, Address, caller, amountA); err != nil {
		return LiquidityResult{}, err
	}
	if err := e.bank.CheckTransferFrom(tokenB, Address, caller, amountB); err != nil {
		return LiquidityResult{}, err
	}
	if err := e.bank.TransferFrom(tokenA, Address, caller, Address, amountA); err != nil {
		return LiquidityResult{}, err
	}
	if err := e.bank.TransferFrom(tokenB, Address, caller, Address, amountB); err != nil {
		return LiquidityResult{}, err
	}

	setReserves(p, tokenA, rA.Add(amountA), rB.Add(amountB))
	p.TotalLiquidity = p.TotalLiquidity.Add(shares)
	e.lp[p.ID][caller] = e.lp[p.ID][caller].Add(shares)

	e.emit.Emit(model.EventLiquidityAdded, caller, p.ID.Hex(), map[string]string{
		"token_a":   tokenA.Hex(),
		"token_b":   tokenB.Hex(),
		"amount_a":  amountA.String(),
		"amount_b":  amountB.String(),
		"liquidity": shares.String(),
	})
	return LiquidityResult{PoolID: p.ID, AmountA: amountA, AmountB: amountB, Liquidity: shares}, nil
}

// optimalAmounts keeps the deposit at the pool's current ratio. An empty pool
// accepts the desired amounts as-is and sets the initial price. Both final
// amounts must meet their minimums whichever side was recomputed.
func optimalAmounts(rA, rB, aDesired, bDesired, aMin, bMin decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	amountA, amountB := aDesired, bDesired
	if !rA.IsZero() || !rB.IsZero() {
		bOptimal, err := cpmm.Quote(aDesired, rA, rB)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
		}
		if bOptimal.LessThanOrEqual(bDesired) {
			amountB = bOptimal
		} else {
			aOptimal, err := cpmm.Quote(bDesired, rB, rA)
			if err != nil {
				return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
			}
			amountA = aOptimal
		}
	}
	if amountA.LessThan(aMin) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: token A %s < min %s", ErrSlippageExceeded, amountA, aMin)
	}
	if amountB.LessThan(bMin) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: token B %s < min %s", ErrSlippageExceeded, amountB, bMin)
	}
	return amountA, amountB, nil
}

// RemoveLiquidity burns caller's LP shares and pays out the proportional
// reserves. Allowed on inactive pools.
func (e *Engine) RemoveLiquidity(caller, tokenA, tokenB common.Address, liquidity, aMin, bMin decimal.Decimal) (LiquidityResult, error) {
	p, err := e.pool(tokenA, tokenB)
	if err != nil {
		return LiquidityResult{}, err
	}
	if err := fixedpoint.Validate(liquidity); err != nil {
		return LiquidityResult{}, err
	}
	if !liquidity.IsPositive() {
		return LiquidityResult{}, ErrZeroAmount
	}
	held := e.lp[p.ID][caller]
	if held.LessThan(liquidity) {
		return LiquidityResult{}, fmt.Errorf("%w: holds %s shares, burning %s", ErrInsufficientLiquidity, held, liquidity)
	}

	rA, rB := reservesFor(p, tokenA)
	amountA, amountB, err := cpmm.RemoveAmounts(liquidity, rA, rB, p.TotalLiquidity)
	if err != nil {
		return LiquidityResult{}, fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
	}
	if amountA.LessThan(aMin) || amountB.LessThan(bMin) {
		return LiquidityResult{}, fmt.Errorf("%w: owed %s/%s, min %s/%s", ErrSlippageExceeded, amountA, amountB, aMin, bMin)
	}

	if amountA.IsPositive() {
		if err := e.bank.Transfer(tokenA, Address, caller, amountA); err != nil {
			return LiquidityResult{}, err
		}
	}
	if amountB.IsPositive() {
		if err := e.bank.Transfer(tokenB, Address, caller, amountB); err != nil {
			return LiquidityResult{}, err
		}
	}

	setReserves(p, tokenA, rA.Sub(amountA), rB.Sub(amountB))
	p.TotalLiquidity = p.TotalLiquidity.Sub(liquidity)
	e.lp[p.ID][caller] = held.Sub(liquidity)

	e.emit.Emit(model.EventLiquidityRemoved, caller, p.ID.Hex(), map[string]string{
		"token_a":   tokenA.Hex(),
		"token_b":   tokenB.Hex(),
		"amount_a":  amountA.String(),
		"amount_b":  amountB.String(),
		"liquidity": liquidity.String(),
	})
	return LiquidityResult{PoolID: p.ID, AmountA: amountA, AmountB: amountB, Liquidity: liquidity}, nil
}

// Swap sells amountIn of tokenIn for tokenOut on behalf of caller.
func (e *Engine) Swap(caller, tokenIn, tokenOut common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, error) {
	return e.SwapTo(caller, caller, tokenIn, tokenOut, amountIn, amountOutMin)
}

// SwapTo pulls amountIn from payer and sends the output to recipient.
func (e *Engine) SwapTo(payer, recipient, tokenIn, tokenOut common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, error) {
	return e.SwapExactPathTo(payer, recipient, []common.Address{tokenIn, tokenOut}, amountIn, amountOutMin)
}

// SwapExactPath executes a multi-hop swap along path for caller.
func (e *Engine) SwapExactPath(caller common.Address, path []common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, error) {
	return e.SwapExactPathTo(caller, caller, path, amountIn, amountOutMin)
}

// QuoteSwap runs every check a direct swap would run and returns its output,
// without moving any tokens.
func (e *Engine) QuoteSwap(tokenIn, tokenOut common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, error) {
	hops, err := e.quotePath([]common.Address{tokenIn, tokenOut}, amountIn, amountOutMin)
	if err != nil {
		return decimal.Zero, err
	}
	return hops[len(hops)-1].amountOut, nil
}

func (e *Engine) quotePath(path []common.Address, amountIn, amountOutMin decimal.Decimal) ([]hop, error) {
	if err := fixedpoint.Validate(amountIn); err != nil {
		return nil, err
	}
	if err := fixedpoint.Validate(amountOutMin); err != nil {
		return nil, err
	}
	if !amountIn.IsPositive() {
		return nil, ErrZeroAmount
	}
	hops, err := e.simulate(path, amountIn)
	if err != nil {
		return nil, err
	}
	out := hops[len(hops)-1].amountOut
	if !out.IsPositive() || out.LessThan(amountOutMin) {
		return nil, fmt.Errorf("%w: got %s, min %s", ErrInsufficientOutput, out, amountOutMin)
	}
	return hops, nil
}

// SwapExactPathTo quotes every hop before moving any tokens, so a failing hop
// leaves all pools untouched.
func (e *Engine) SwapExactPathTo(payer, recipient common.Address, path []common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, error) {
	hops, err := e.quotePath(path, amountIn, amountOutMin)
	if err != nil {
		return decimal.Zero, err
	}
	out := hops[len(hops)-1].amountOut
	if err := e.bank.CheckTransferFrom(path[0], Address, payer, amountIn); err != nil {
		return decimal.Zero, err
	}

	if err := e.bank.TransferFrom(path[0], Address, payer, Address, amountIn); err != nil {
		return decimal.Zero, err
	}
	for _, h := range hops {
		p := e.pools[h.pool]
		rIn, rOut := reservesFor(p, h.tokenIn)
		setReserves(p, h.tokenIn, rIn.Add(h.amountIn), rOut.Sub(h.amountOut))
		e.emit.Emit(model.EventSwap, payer, p.ID.Hex(), map[string]string{
			"token_in":   h.tokenIn.Hex(),
			"token_out":  h.tokenOut.Hex(),
			"amount_in":  h.amountIn.String(),
			"amount_out": h.amountOut.String(),
			"recipient":  recipient.Hex(),
		})
	}
	if err := e.bank.Transfer(path[len(path)-1], Address, recipient, out); err != nil {
		return decimal.Zero, err
	}
	return out, nil
}

// GetAmountOut quotes a direct swap without mutating state. exists is false
// when no pool connects the pair; an existing pool that cannot fill the
// trade quotes zero.
func (e *Engine) GetAmountOut(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) (decimal.Decimal, bool) {
	if tokenIn == tokenOut {
		return decimal.Zero, false
	}
	p, ok := e.pools[PoolID(tokenIn, tokenOut)]
	if !ok {
		return decimal.Zero, false
	}
	if !p.IsActive {
		return decimal.Zero, true
	}
	hops, err := e.simulate([]common.Address{tokenIn, tokenOut}, amountIn)
	if err != nil {
		return decimal.Zero, true
	}
	return hops[0].amountOut, true
}

// SetDefaultSwapFee changes the fee applied by CreatePoolDefaultFee.
// Governance only.
func (e *Engine) SetDefaultSwapFee(caller common.Address, feeBps uint16) error {
	if caller != e.principals.Governance {
		return ErrOnlyGovernance
	}
	if feeBps > e.cfg.MaxFeeBps {
		return fmt.Errorf("%w: %d > %d bps", ErrFeeTooHigh, feeBps, e.cfg.MaxFeeBps)
	}
	e.cfg.DefaultFeeBps = feeBps
	e.emit.Emit(model.EventSwapFeeUpdated, caller, "default", map[string]string{
		"fee_bps": fmt.Sprint(feeBps),
	})
	return nil
}

// DefaultSwapFee returns the current default fee in basis points.
func (e *Engine) DefaultSwapFee() uint16 {
	return e.cfg.DefaultFeeBps
}

// SetSwapFee changes one pool's fee. Governance only.
func (e *Engine) SetSwapFee(caller, tokenA, tokenB common.Address, feeBps uint16) error {
	if caller != e.principals.Governance {
		return ErrOnlyGovernance
	}
	p, err := e.pool(tokenA, tokenB)
	if err != nil {
		return err
	}
	if feeBps > e.cfg.MaxFeeBps {
		return fmt.Errorf("%w: %d > %d bps", ErrFeeTooHigh, feeBps, e.cfg.MaxFeeBps)
	}
	p.SwapFeeBps = feeBps
	e.emit.Emit(model.EventSwapFeeUpdated, caller, p.ID.Hex(), map[string]string{
		"fee_bps": fmt.Sprint(feeBps),
	})
	return nil
}

// SetPoolActive pauses or resumes swaps and deposits on a pool. Governance
// only. Withdrawals stay open while paused.
func (e *Engine) SetPoolActive(caller, tokenA, tokenB common.Address, active bool) error {
	if caller != e.principals.Governance {
		return ErrOnlyGovernance
	}
	p, err := e.pool(tokenA, tokenB)
	if err != nil {
		return err
	}
	p.IsActive = active
	e.emit.Emit(model.EventPoolStatus, caller, p.ID.Hex(), map[string]string{
		"active": fmt.Sprint(active),
	})
	return nil
}

// GetPool returns a copy of the pool for a pair.
func (e *Engine) GetPool(tokenA, tokenB common.Address) (model.Pool, bool) {
	p, ok := e.pools[PoolID(tokenA, tokenB)]
	if !ok {
		return model.Pool{}, false
	}
	return *p, true
}

// GetPoolByID returns a copy of a pool by identity.
func (e *Engine) GetPoolByID(id common.Hash) (model.Pool, bool) {
	p, ok := e.pools[id]
	if !ok {
		return model.Pool{}, false
	}
	return *p, true
}

// ListPools returns all pools in creation order.
func (e *Engine) ListPools() []model.Pool {
	out := make([]model.Pool, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.pools[id])
	}
	return out
}

// LiquidityOf returns owner's LP share balance in a pool.
func (e *Engine) LiquidityOf(tokenA, tokenB, owner common.Address) decimal.Decimal {
	return e.lp[PoolID(tokenA, tokenB)][owner]
}

// LiquidityProviders returns the non-zero LP balances of a pool, sorted by
// address.
func (e *Engine) LiquidityProviders(id common.Hash) []LPBalance {
	var out []LPBalance
	for owner, shares := range e.lp[id] {
		if shares.IsPositive() {
			out = append(out, LPBalance{Owner: owner, Shares: shares})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Owner.Bytes(), out[j].Owner.Bytes()) < 0
	})
	return out
}

// LPBalance is one provider's share of a pool.
type LPBalance struct {
	Owner  common.Address  `json:"owner"`
	Shares decimal.Decimal `json:"shares"`
}

func (e *Engine) pool(tokenA, tokenB common.Address) (*model.Pool, error) {
	if tokenA == tokenB {
		return nil, ErrIdenticalTokens
	}
	p, ok := e.pools[PoolID(tokenA, tokenB)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, tokenA.Hex(), tokenB.Hex())
	}
	return p, nil
}

// reservesFor returns the pool reserves oriented as (tokenIn side, other side).
func reservesFor(p *model.Pool, tokenIn common.Address) (decimal.Decimal, decimal.Decimal) {
	if tokenIn == p.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

func setReserves(p *model.Pool, tokenIn common.Address, rIn, rOut decimal.Decimal) {
	if tokenIn == p.Token0 {
		p.Reserve0, p.Reserve1 = rIn, rOut
		return
	}
	p.Reserve1, p.Reserve0 = rIn, rOut
}
