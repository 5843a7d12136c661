package ledger

import (
	"bytes"
	"context"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/amm"
	"github.com/atmx/rwa-engine/internal/automation"
	"github.com/atmx/rwa-engine/internal/cpmm"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/oracle"
	"github.com/atmx/rwa-engine/internal/registry"
)

// --- Tokenization registry ---

func (l *Ledger) RegisterPlatform(ctx context.Context, caller common.Address, name, apiEndpoint string) (*model.PlatformRecord, []model.Event, error) {
	return mutate(ctx, l, "register_platform", func() (*model.PlatformRecord, error) {
		return l.registry.RegisterPlatform(caller, name, apiEndpoint)
	})
}

func (l *Ledger) SetPlatformActive(ctx context.Context, caller common.Address, name string, active bool) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "set_platform_active", func() (struct{}, error) {
		return struct{}{}, l.registry.SetPlatformActive(caller, name, active)
	})
	return ev, err
}

func (l *Ledger) TokenizeAsset(ctx context.Context, caller common.Address, p registry.TokenizeParams) (common.Address, []model.Event, error) {
	return mutate(ctx, l, "tokenize_asset", func() (common.Address, error) {
		return l.registry.TokenizeAsset(caller, p)
	})
}

// BatchTokenize holds the lock once for the whole batch. Elements succeed or
// fail independently.
func (l *Ledger) BatchTokenize(ctx context.Context, caller common.Address, params []registry.TokenizeParams) ([]registry.BatchResult, []model.Event, error) {
	return mutate(ctx, l, "batch_tokenize", func() ([]registry.BatchResult, error) {
		return l.registry.BatchTokenize(caller, params), nil
	})
}

func (l *Ledger) BurnTokens(ctx context.Context, caller common.Address, platform, assetID string, amount decimal.Decimal) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "burn_tokens", func() (struct{}, error) {
		return struct{}{}, l.registry.BurnTokens(caller, platform, assetID, amount)
	})
	return ev, err
}

func (l *Ledger) UpdateValuation(ctx context.Context, caller common.Address, platform, assetID string, valuation decimal.Decimal) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "update_valuation", func() (struct{}, error) {
		return struct{}{}, l.registry.UpdateValuation(caller, platform, assetID, valuation)
	})
	return ev, err
}

func (l *Ledger) GetAssetMetadata(platform, assetID string) (model.AssetToken, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.GetAssetMetadata(platform, assetID)
}

func (l *Ledger) GetTokenAddress(platform, assetID string) (common.Address, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.GetTokenAddress(platform, assetID)
}

func (l *Ledger) GetPlatformInfo(name string) (model.PlatformRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.GetPlatformInfo(name)
}

func (l *Ledger) VerifyAssetBacking(platform, assetID string, proof []byte) bool {
	return read(l, func() bool { return l.registry.VerifyAssetBacking(platform, assetID, proof) })
}

func (l *Ledger) ValuationHistory(platform, assetID string) []model.ValuationPoint {
	return read(l, func() []model.ValuationPoint { return l.registry.ValuationHistory(platform, assetID) })
}

func (l *Ledger) ListPlatforms() []model.PlatformRecord {
	return read(l, l.registry.ListPlatforms)
}

func (l *Ledger) ListAssets(platform string) []model.AssetToken {
	return read(l, func() []model.AssetToken { return l.registry.ListAssets(platform) })
}

// --- Token bank ---

func (l *Ledger) Transfer(ctx context.Context, caller, tok, to common.Address, amount decimal.Decimal) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "transfer", func() (struct{}, error) {
		return struct{}{}, l.bank.Transfer(tok, caller, to, amount)
	})
	return ev, err
}

func (l *Ledger) Approve(ctx context.Context, caller, tok, spender common.Address, amount decimal.Decimal) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "approve", func() (struct{}, error) {
		return struct{}{}, l.bank.Approve(tok, caller, spender, amount)
	})
	return ev, err
}

// TokenBalance is one holder's position in a token.
type TokenBalance struct {
	Token   common.Address  `json:"token"`
	Owner   common.Address  `json:"owner"`
	Balance decimal.Decimal `json:"balance"`
	Supply  decimal.Decimal `json:"total_supply"`
}

func (l *Ledger) BalanceOf(tok, owner common.Address) (TokenBalance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.bank.Exists(tok) {
		return TokenBalance{}, false
	}
	return TokenBalance{
		Token:   tok,
		Owner:   owner,
		Balance: l.bank.BalanceOf(tok, owner),
		Supply:  l.bank.TotalSupply(tok),
	}, true
}

// TokenInfo describes a registry token and everyone holding it.
type TokenInfo struct {
	Token   common.Address   `json:"token"`
	Symbol  string           `json:"symbol"`
	Supply  decimal.Decimal  `json:"total_supply"`
	Asset   model.AssetToken `json:"asset"`
	Holders []TokenBalance   `json:"holders"`
}

// TokenInfo returns the asset behind tok and its holders, largest first.
func (l *Ledger) TokenInfo(tok common.Address) (TokenInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	asset, ok := l.registry.AssetByToken(tok)
	if !ok {
		return TokenInfo{}, false
	}
	supply := l.bank.TotalSupply(tok)
	info := TokenInfo{Token: tok, Symbol: l.bank.Symbol(tok), Supply: supply, Asset: asset}
	for owner, bal := range l.bank.Holders(tok) {
		info.Holders = append(info.Holders, TokenBalance{Token: tok, Owner: owner, Balance: bal, Supply: supply})
	}
	slices.SortFunc(info.Holders, func(a, b TokenBalance) int {
		if c := b.Balance.Cmp(a.Balance); c != 0 {
			return c
		}
		return bytes.Compare(a.Owner.Bytes(), b.Owner.Bytes())
	})
	return info, true
}

func (l *Ledger) Allowance(tok, owner, spender common.Address) decimal.Decimal {
	return read(l, func() decimal.Decimal { return l.bank.Allowance(tok, owner, spender) })
}

// --- AMM pool engine ---

func (l *Ledger) CreatePool(ctx context.Context, caller, tokenA, tokenB common.Address, feeBps *uint16) (model.Pool, []model.Event, error) {
	return mutate(ctx, l, "create_pool", func() (model.Pool, error) {
		if feeBps == nil {
			return l.pools.CreatePoolDefaultFee(caller, tokenA, tokenB)
		}
		return l.pools.CreatePool(caller, tokenA, tokenB, *feeBps)
	})
}

func (l *Ledger) AddLiquidity(ctx context.Context, caller, tokenA, tokenB common.Address, aDesired, bDesired, aMin, bMin decimal.Decimal) (amm.LiquidityResult, []model.Event, error) {
	return mutate(ctx, l, "add_liquidity", func() (amm.LiquidityResult, error) {
		return l.pools.AddLiquidity(caller, tokenA, tokenB, aDesired, bDesired, aMin, bMin)
	})
}

func (l *Ledger) RemoveLiquidity(ctx context.Context, caller, tokenA, tokenB common.Address, liquidity, aMin, bMin decimal.Decimal) (amm.LiquidityResult, []model.Event, error) {
	return mutate(ctx, l, "remove_liquidity", func() (amm.LiquidityResult, error) {
		return l.pools.RemoveLiquidity(caller, tokenA, tokenB, liquidity, aMin, bMin)
	})
}

func (l *Ledger) Swap(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, []model.Event, error) {
	return mutate(ctx, l, "swap", func() (decimal.Decimal, error) {
		return l.pools.Swap(caller, tokenIn, tokenOut, amountIn, amountOutMin)
	})
}

func (l *Ledger) SwapExactPath(ctx context.Context, caller common.Address, path []common.Address, amountIn, amountOutMin decimal.Decimal) (decimal.Decimal, []model.Event, error) {
	return mutate(ctx, l, "swap_path", func() (decimal.Decimal, error) {
		return l.pools.SwapExactPath(caller, path, amountIn, amountOutMin)
	})
}

func (l *Ledger) SetDefaultSwapFee(ctx context.Context, caller common.Address, feeBps uint16) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "set_default_fee", func() (struct{}, error) {
		return struct{}{}, l.pools.SetDefaultSwapFee(caller, feeBps)
	})
	return ev, err
}

func (l *Ledger) SetSwapFee(ctx context.Context, caller, tokenA, tokenB common.Address, feeBps uint16) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "set_pool_fee", func() (struct{}, error) {
		return struct{}{}, l.pools.SetSwapFee(caller, tokenA, tokenB, feeBps)
	})
	return ev, err
}

func (l *Ledger) SetPoolActive(ctx context.Context, caller, tokenA, tokenB common.Address, active bool) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "set_pool_active", func() (struct{}, error) {
		return struct{}{}, l.pools.SetPoolActive(caller, tokenA, tokenB, active)
	})
	return ev, err
}

func (l *Ledger) GetAmountOut(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) (decimal.Decimal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pools.GetAmountOut(tokenIn, tokenOut, amountIn)
}

func (l *Ledger) FindBestRoute(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) model.Route {
	return read(l, func() model.Route { return l.pools.FindBestRoute(tokenIn, tokenOut, amountIn) })
}

func (l *Ledger) GetPool(tokenA, tokenB common.Address) (model.Pool, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pools.GetPool(tokenA, tokenB)
}

// PoolView is a pool with its marginal prices: Price0 is token1 per token0,
// Price1 the inverse, both scaled to fixedpoint.Scale. Empty pools quote zero.
type PoolView struct {
	model.Pool
	Price0 decimal.Decimal `json:"price0"`
	Price1 decimal.Decimal `json:"price1"`
}

func (l *Ledger) PoolByID(id common.Hash) (PoolView, bool) {
	l.mu.RLock()
	p, ok := l.pools.GetPoolByID(id)
	l.mu.RUnlock()
	if !ok {
		return PoolView{}, false
	}
	v := PoolView{Pool: p, Price0: decimal.Zero, Price1: decimal.Zero}
	if price, err := cpmm.SpotPrice(p.Reserve0, p.Reserve1); err == nil {
		v.Price0 = price
	}
	if price, err := cpmm.SpotPrice(p.Reserve1, p.Reserve0); err == nil {
		v.Price1 = price
	}
	return v, true
}

func (l *Ledger) ListPools() []model.Pool {
	return read(l, l.pools.ListPools)
}

func (l *Ledger) LiquidityOf(tokenA, tokenB, owner common.Address) decimal.Decimal {
	return read(l, func() decimal.Decimal { return l.pools.LiquidityOf(tokenA, tokenB, owner) })
}

func (l *Ledger) LiquidityProviders(tokenA, tokenB common.Address) []amm.LPBalance {
	return read(l, func() []amm.LPBalance { return l.pools.LiquidityProviders(amm.PoolID(tokenA, tokenB)) })
}

func (l *Ledger) DefaultSwapFee() uint16 {
	return read(l, l.pools.DefaultSwapFee)
}

// --- Price oracle ---

func (l *Ledger) UpdatePrice(ctx context.Context, caller common.Address, platform, assetID string, price decimal.Decimal) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "update_price", func() (struct{}, error) {
		return struct{}{}, l.oracle.UpdatePrice(caller, platform, assetID, price)
	})
	return ev, err
}

func (l *Ledger) GetPrice(platform, assetID string) (model.PriceRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.oracle.GetPrice(platform, assetID)
}

func (l *Ledger) CalculateArbitrageSpread(assetID, platformA, platformB string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.oracle.CalculateArbitrageSpread(assetID, platformA, platformB)
}

func (l *Ledger) Spreads(assetID string, platforms []string, minBps decimal.Decimal) []oracle.Spread {
	return read(l, func() []oracle.Spread { return l.oracle.Spreads(assetID, platforms, minBps) })
}

func (l *Ledger) RequestCrossPlatformPrices(ctx context.Context, caller common.Address, assetID string, platforms []string) (model.PriceRequest, []model.Event, error) {
	return mutate(ctx, l, "request_prices", func() (model.PriceRequest, error) {
		return l.oracle.RequestCrossPlatformPrices(caller, assetID, platforms)
	})
}

func (l *Ledger) FulfillPriceRequest(ctx context.Context, caller common.Address, id common.Hash, platform string, price decimal.Decimal) ([]model.Event, error) {
	_, ev, err := mutate(ctx, l, "fulfill_price", func() (struct{}, error) {
		return struct{}{}, l.oracle.FulfillPriceRequest(caller, id, platform, price)
	})
	return ev, err
}

func (l *Ledger) GetPriceRequest(id common.Hash) (model.PriceRequest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.oracle.GetRequest(id)
}

func (l *Ledger) PendingRequests() []model.PriceRequest {
	return read(l, l.oracle.PendingRequests)
}

// --- Delegated automation ---

func (l *Ledger) DelegateTrading(ctx context.Context, caller common.Address, maxTradeSize, maxDailyVolume decimal.Decimal, allowedAssets []string) (model.TradingPermission, []model.Event, error) {
	return mutate(ctx, l, "delegate_trading", func() (model.TradingPermission, error) {
		return l.automation.DelegateTrading(caller, maxTradeSize, maxDailyVolume, allowedAssets)
	})
}

func (l *Ledger) QueueAutomatedTrade(ctx context.Context, caller common.Address, q automation.QueueParams) (model.QueuedTrade, []model.Event, error) {
	return mutate(ctx, l, "queue_trade", func() (model.QueuedTrade, error) {
		return l.automation.QueueAutomatedTrade(caller, q)
	})
}

func (l *Ledger) ExecuteAutomatedTrade(ctx context.Context, caller common.Address, id common.Hash) (model.QueuedTrade, []model.Event, error) {
	return mutate(ctx, l, "execute_trade", func() (model.QueuedTrade, error) {
		return l.automation.ExecuteAutomatedTrade(caller, id)
	})
}

func (l *Ledger) CancelTrade(ctx context.Context, caller common.Address, id common.Hash) (model.QueuedTrade, []model.Event, error) {
	return mutate(ctx, l, "cancel_trade", func() (model.QueuedTrade, error) {
		return l.automation.CancelTrade(caller, id)
	})
}

func (l *Ledger) ExpireTrade(ctx context.Context, caller common.Address, id common.Hash) (model.QueuedTrade, []model.Event, error) {
	return mutate(ctx, l, "expire_trade", func() (model.QueuedTrade, error) {
		return l.automation.ExpireTrade(caller, id)
	})
}

func (l *Ledger) GetTrade(id common.Hash) (model.QueuedTrade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.automation.GetTrade(id)
}

func (l *Ledger) TradesByUser(user common.Address) []model.QueuedTrade {
	return read(l, func() []model.QueuedTrade { return l.automation.TradesByUser(user) })
}

func (l *Ledger) Permission(user common.Address) (model.TradingPermission, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.automation.Permission(user)
}

// ComponentAddresses are the spender identities callers approve before burn,
// liquidity, swap and automated-trade calls.
type ComponentAddresses struct {
	Registry   common.Address `json:"registry"`
	AMM        common.Address `json:"amm"`
	Automation common.Address `json:"automation"`
}

func Components() ComponentAddresses {
	return ComponentAddresses{
		Registry:   registry.Address,
		AMM:        amm.Address,
		Automation: automation.Address,
	}
}
