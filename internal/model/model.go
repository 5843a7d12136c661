// Package model defines the core domain types shared across the RWA engine.
// All monetary values are integral base units in shopspring/decimal (see
// package fixedpoint); never float64 for money.
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PlatformRecord is a registered custodial platform. Records are never
// deleted; IsActive=false is the only way to retire one.
type PlatformRecord struct {
	Name                 string          `json:"name" db:"name"`
	APIEndpoint          string          `json:"api_endpoint" db:"api_endpoint"`
	IsActive             bool            `json:"is_active" db:"is_active"`
	TotalAssetsTokenized int64           `json:"total_assets_tokenized" db:"total_assets_tokenized"`
	TotalValueLocked     decimal.Decimal `json:"total_value_locked" db:"total_value_locked"`
	RegisteredAt         time.Time       `json:"registered_at" db:"registered_at"`
}

// AssetToken is the registry record for one tokenized (platform, assetId).
type AssetToken struct {
	Token              common.Address  `json:"token"`
	Platform           string          `json:"platform"`
	AssetID            string          `json:"asset_id"`
	TotalSupply        decimal.Decimal `json:"total_supply"`
	AssetType          string          `json:"asset_type"`
	Subcategory        string          `json:"subcategory"`
	LegalHash          common.Hash     `json:"legal_hash"`
	LastValuation      decimal.Decimal `json:"last_valuation"`
	ValuationTimestamp time.Time       `json:"valuation_timestamp"`
	SharePrice         decimal.Decimal `json:"share_price"`
	AvailableShares    decimal.Decimal `json:"available_shares"`
	Currency           string          `json:"currency"`
	Issuer             common.Address  `json:"issuer"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ValuationPoint is one entry of an asset's valuation history.
type ValuationPoint struct {
	Valuation decimal.Decimal `json:"valuation"`
	Timestamp time.Time       `json:"timestamp"`
}

// Pool is a constant-product liquidity pool. Token0 < Token1 always; reserves
// are stored against that canonical order, never the caller's order.
type Pool struct {
	ID             common.Hash     `json:"id"`
	Token0         common.Address  `json:"token0"`
	Token1         common.Address  `json:"token1"`
	Reserve0       decimal.Decimal `json:"reserve0"`
	Reserve1       decimal.Decimal `json:"reserve1"`
	TotalLiquidity decimal.Decimal `json:"total_liquidity"`
	SwapFeeBps     uint16          `json:"swap_fee_bps"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Route is a swap path and its quoted output. An empty Path with a zero
// AmountOut means no route exists.
type Route struct {
	Path      []common.Address `json:"path"`
	AmountOut decimal.Decimal  `json:"amount_out"`
}

// TradingPermission bounds what the automation agent may do for one user.
type TradingPermission struct {
	User                common.Address  `json:"user"`
	MaxTradeSize        decimal.Decimal `json:"max_trade_size"`
	MaxDailyVolume      decimal.Decimal `json:"max_daily_volume"`
	DailySpent          decimal.Decimal `json:"daily_spent"`
	DailyResetTimestamp time.Time       `json:"daily_reset_timestamp"`
	AllowedAssets       []string        `json:"allowed_assets"`
}

// TradeStatus is the lifecycle state of a queued trade.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeExecuted  TradeStatus = "EXECUTED"
	TradeExpired   TradeStatus = "EXPIRED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// QueuedTrade is an automated trade submitted by the agent for a user.
type QueuedTrade struct {
	TradeID      common.Hash     `json:"trade_id"`
	User         common.Address  `json:"user"`
	SellPlatform string          `json:"sell_platform"`
	SellAsset    string          `json:"sell_asset"`
	BuyPlatform  string          `json:"buy_platform"`
	BuyAsset     string          `json:"buy_asset"`
	SellToken    common.Address  `json:"sell_token"`
	BuyToken     common.Address  `json:"buy_token"`
	Amount       decimal.Decimal `json:"amount"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	Deadline     time.Time       `json:"deadline"`
	Status       TradeStatus     `json:"status"`
	Nonce        uint64          `json:"nonce"`
	QueuedAt     time.Time       `json:"queued_at"`
	ExecutedAt   time.Time       `json:"executed_at,omitempty"`
	AmountOut    decimal.Decimal `json:"amount_out"`
}

// PriceRecord is the last price a platform reported for one of its assets.
type PriceRecord struct {
	Platform   string          `json:"platform"`
	AssetID    string          `json:"asset_id"`
	LastPrice  decimal.Decimal `json:"last_price"`
	LastUpdate time.Time       `json:"last_update"`
}

// PriceRequest is an outstanding cross-platform price fetch.
type PriceRequest struct {
	RequestID   common.Hash          `json:"request_id"`
	AssetID     string               `json:"asset_id"`
	Platforms   []string             `json:"platforms"`
	RequestedBy common.Address       `json:"requested_by"`
	RequestedAt time.Time            `json:"requested_at"`
	Fulfilled   map[string]time.Time `json:"fulfilled"`
}

// Complete reports whether every requested platform has answered.
func (r *PriceRequest) Complete() bool {
	return len(r.Fulfilled) >= len(r.Platforms)
}

// EventKind classifies journal entries.
type EventKind string

const (
	EventPlatformRegistered EventKind = "platform_registered"
	EventPlatformStatus     EventKind = "platform_status"
	EventAssetTokenized     EventKind = "asset_tokenized"
	EventTokensBurned       EventKind = "tokens_burned"
	EventValuationUpdated   EventKind = "valuation_updated"
	EventTransfer           EventKind = "transfer"
	EventApproval           EventKind = "approval"
	EventPoolCreated        EventKind = "pool_created"
	EventPoolStatus         EventKind = "pool_status"
	EventLiquidityAdded     EventKind = "liquidity_added"
	EventLiquidityRemoved   EventKind = "liquidity_removed"
	EventSwap               EventKind = "swap"
	EventSwapFeeUpdated     EventKind = "swap_fee_updated"
	EventPriceUpdated       EventKind = "price_updated"
	EventPriceRequested     EventKind = "price_requested"
	EventTradingDelegated   EventKind = "trading_delegated"
	EventTradeQueued        EventKind = "trade_queued"
	EventTradeExecuted      EventKind = "trade_executed"
	EventTradeStatus        EventKind = "trade_status"
)

// Event is an immutable journal record of one committed state transition.
// Once written, these are never modified or deleted.
type Event struct {
	ID         string            `json:"id" db:"id"`
	Sequence   uint64            `json:"sequence" db:"sequence"`
	Kind       EventKind         `json:"kind" db:"kind"`
	Actor      string            `json:"actor" db:"actor"`
	Subject    string            `json:"subject" db:"subject"`
	Attributes map[string]string `json:"attributes" db:"attributes"`
	Timestamp  time.Time         `json:"timestamp" db:"timestamp"`
}

// EventFilter narrows journal queries. Zero-valued fields match everything.
type EventFilter struct {
	Kind    EventKind
	Actor   string
	Subject string
	Before  time.Time
	After   time.Time
	Limit   int

	// AfterSequence keeps only events with a greater sequence.
	AfterSequence uint64
}

// Match reports whether e satisfies the filter.
func (f EventFilter) Match(e Event) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if !f.Before.IsZero() && !e.Timestamp.Before(f.Before) {
		return false
	}
	if !f.After.IsZero() && !e.Timestamp.After(f.After) {
		return false
	}
	if e.Sequence <= f.AfterSequence {
		return false
	}
	return true
}

// Emitter receives events from components while an operation is running.
// The ledger buffers them and commits only if the operation succeeds.
type Emitter interface {
	Emit(kind EventKind, actor common.Address, subject string, attrs map[string]string)
}

// Clock returns the current ledger time.
type Clock func() time.Time

// Principals are the privileged identities of the ledger.
type Principals struct {
	Governance common.Address `json:"governance" toml:"governance"`
	Oracle     common.Address `json:"oracle" toml:"oracle"`
	Agent      common.Address `json:"agent" toml:"agent"`
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(EventKind, common.Address, string, map[string]string) {}
