package ledger

import (
	"errors"

	"github.com/atmx/rwa-engine/internal/amm"
	"github.com/atmx/rwa-engine/internal/assetref"
	"github.com/atmx/rwa-engine/internal/automation"
	"github.com/atmx/rwa-engine/internal/cpmm"
	"github.com/atmx/rwa-engine/internal/delegation"
	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/oracle"
	"github.com/atmx/rwa-engine/internal/registry"
	"github.com/atmx/rwa-engine/internal/token"
)

// Stable error kinds exposed to clients.
const (
	KindPlatformExists        = "PlatformExists"
	KindPlatformNotRegistered = "PlatformNotRegistered"
	KindAssetAlreadyTokenized = "AssetAlreadyTokenized"
	KindTokenNotFound         = "TokenNotFound"
	KindOnlyOracle            = "OnlyOracle"
	KindOnlyGovernance        = "OnlyGovernance"
	KindOnlyAIAgent           = "OnlyAIAgent"
	KindIdenticalTokens       = "IdenticalTokens"
	KindPoolExists            = "PoolExists"
	KindPoolNotFound          = "PoolNotFound"
	KindPoolInactive          = "PoolInactive"
	KindFeeTooHigh            = "FeeTooHigh"
	KindSlippageExceeded      = "SlippageExceeded"
	KindInsufficientOutput    = "InsufficientOutput"
	KindInsufficientLiquidity = "InsufficientLiquidity"
	KindPriceNotAvailable     = "PriceNotAvailable"
	KindUnknownRequest        = "UnknownRequest"
	KindTradeLimitExceeded    = "TradeLimitExceeded"
	KindAssetNotAllowed       = "AssetNotAllowed"
	KindTradeNotFound         = "TradeNotFound"
	KindTradeExpired          = "TradeExpired"
	KindTradeNotPending       = "TradeNotPending"
	KindZeroAmount            = "ZeroAmount"
	KindInvalidAmount         = "InvalidAmount"
	KindInsufficientBalance   = "InsufficientBalance"
	KindInsufficientAllowance = "InsufficientAllowance"
	KindInvalidPlatform       = "InvalidPlatform"
	KindInvalidAssetID        = "InvalidAssetID"
	KindInvalidRequest        = "InvalidRequest"
	KindInternal              = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{registry.ErrPlatformExists, KindPlatformExists},
	{registry.ErrPlatformNotRegistered, KindPlatformNotRegistered},
	{registry.ErrAssetAlreadyTokenized, KindAssetAlreadyTokenized},
	{registry.ErrTokenNotFound, KindTokenNotFound},
	{registry.ErrOnlyOracle, KindOnlyOracle},
	{registry.ErrOnlyGovernance, KindOnlyGovernance},
	{registry.ErrZeroSupply, KindZeroAmount},
	{amm.ErrIdenticalTokens, KindIdenticalTokens},
	{amm.ErrPoolExists, KindPoolExists},
	{amm.ErrPoolNotFound, KindPoolNotFound},
	{amm.ErrPoolInactive, KindPoolInactive},
	{amm.ErrFeeTooHigh, KindFeeTooHigh},
	{amm.ErrSlippageExceeded, KindSlippageExceeded},
	{amm.ErrInsufficientOutput, KindInsufficientOutput},
	{amm.ErrInsufficientLiquidity, KindInsufficientLiquidity},
	{amm.ErrTokenNotFound, KindTokenNotFound},
	{amm.ErrOnlyGovernance, KindOnlyGovernance},
	{amm.ErrZeroAmount, KindZeroAmount},
	{amm.ErrInvalidPath, KindInvalidRequest},
	{cpmm.ErrInsufficientLiquidity, KindInsufficientLiquidity},
	{cpmm.ErrInvalidFee, KindFeeTooHigh},
	{cpmm.ErrZeroAmount, KindZeroAmount},
	{oracle.ErrOnlyOracle, KindOnlyOracle},
	{oracle.ErrPriceNotAvailable, KindPriceNotAvailable},
	{oracle.ErrUnknownRequest, KindUnknownRequest},
	{oracle.ErrPlatformNotInRequest, KindUnknownRequest},
	{oracle.ErrNoPlatforms, KindInvalidRequest},
	{delegation.ErrTradeLimitExceeded, KindTradeLimitExceeded},
	{delegation.ErrAssetNotAllowed, KindAssetNotAllowed},
	{automation.ErrOnlyAIAgent, KindOnlyAIAgent},
	{automation.ErrTokenNotFound, KindTokenNotFound},
	{automation.ErrTradeNotFound, KindTradeNotFound},
	{automation.ErrTradeExpired, KindTradeExpired},
	{automation.ErrTradeNotPending, KindTradeNotPending},
	{automation.ErrTradeNotExpired, KindTradeNotPending},
	{automation.ErrZeroAmount, KindZeroAmount},
	{automation.ErrIdenticalAssets, KindIdenticalTokens},
	{automation.ErrNotTradeOwner, KindOnlyAIAgent},
	{token.ErrInsufficientBalance, KindInsufficientBalance},
	{token.ErrInsufficientAllowance, KindInsufficientAllowance},
	{token.ErrUnknownToken, KindTokenNotFound},
	{token.ErrTokenExists, KindAssetAlreadyTokenized},
	{token.ErrZeroAddress, KindInvalidRequest},
	{fixedpoint.ErrInvalidAmount, KindInvalidAmount},
	{fixedpoint.ErrDivisionByZero, KindInsufficientLiquidity},
	{assetref.ErrInvalidPlatform, KindInvalidPlatform},
	{assetref.ErrInvalidAssetID, KindInvalidAssetID},
	{assetref.ErrInvalidType, KindInvalidRequest},
	{assetref.ErrInvalidRef, KindInvalidRequest},
}

// ErrorKind classifies err into one of the Kind constants. Unrecognized
// errors are Internal.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
