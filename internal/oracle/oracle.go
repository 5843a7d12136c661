// Package oracle stores the last price each custodial platform reported for
// an asset and computes cross-platform arbitrage spreads.
//
// Prices are independent of the registry: a platform may report a price for
// an asset that was never tokenized.
package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/assetref"
	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
)

var (
	ErrOnlyOracle           = errors.New("oracle: caller is not the oracle")
	ErrPriceNotAvailable    = errors.New("oracle: price not available")
	ErrUnknownRequest       = errors.New("oracle: unknown price request")
	ErrPlatformNotInRequest = errors.New("oracle: platform not part of request")
	ErrNoPlatforms          = errors.New("oracle: at least one platform required")
)

// Spread is the price gap of one asset between two platforms.
type Spread struct {
	AssetID      string          `json:"asset_id"`
	BuyPlatform  string          `json:"buy_platform"`
	SellPlatform string          `json:"sell_platform"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	Bps          decimal.Decimal `json:"bps"`
}

// Oracle holds price records and outstanding cross-platform price requests.
// It does not lock; the ledger serializes every call.
type Oracle struct {
	emit       model.Emitter
	now        model.Clock
	principals model.Principals

	prices   map[assetref.Ref]*model.PriceRecord
	requests map[common.Hash]*model.PriceRequest
	order    []common.Hash
	nonce    uint64
}

// New creates an oracle with no prices.
func New(emit model.Emitter, now model.Clock, p model.Principals) *Oracle {
	return &Oracle{
		emit:       emit,
		now:        now,
		principals: p,
		prices:     make(map[assetref.Ref]*model.PriceRecord),
		requests:   make(map[common.Hash]*model.PriceRequest),
	}
}

// UpdatePrice overwrites the price of (platform, assetId). Oracle only. No
// sanity check against the previous price is made.
func (o *Oracle) UpdatePrice(caller common.Address, platform, assetID string, price decimal.Decimal) error {
	if caller != o.principals.Oracle {
		return ErrOnlyOracle
	}
	ref, err := assetref.New(platform, assetID)
	if err != nil {
		return err
	}
	if err := fixedpoint.Validate(price); err != nil {
		return err
	}
	o.setPrice(caller, ref, price)
	return nil
}

func (o *Oracle) setPrice(caller common.Address, ref assetref.Ref, price decimal.Decimal) {
	o.prices[ref] = &model.PriceRecord{
		Platform:   ref.Platform,
		AssetID:    ref.AssetID,
		LastPrice:  price,
		LastUpdate: o.now(),
	}
	o.emit.Emit(model.EventPriceUpdated, caller, ref.String(), map[string]string{
		"price": price.String(),
	})
}

// GetPrice returns the last price of (platform, assetId). found is false when
// nothing was ever reported, which is distinct from a reported zero.
func (o *Oracle) GetPrice(platform, assetID string) (model.PriceRecord, bool) {
	r, ok := o.prices[assetref.Ref{Platform: platform, AssetID: assetID}]
	if !ok {
		return model.PriceRecord{}, false
	}
	return *r, true
}

// CalculateArbitrageSpread returns floor(|a-b| * 10000 / min(a,b)) in basis
// points. Both prices must exist and the lower one must be positive.
func (o *Oracle) CalculateArbitrageSpread(assetID, platformA, platformB string) (decimal.Decimal, error) {
	s, err := o.spread(assetID, platformA, platformB)
	if err != nil {
		return decimal.Zero, err
	}
	return s.Bps, nil
}

func (o *Oracle) spread(assetID, platformA, platformB string) (Spread, error) {
	a, ok := o.prices[assetref.Ref{Platform: platformA, AssetID: assetID}]
	if !ok {
		return Spread{}, fmt.Errorf("%w: %s/%s", ErrPriceNotAvailable, platformA, assetID)
	}
	b, ok := o.prices[assetref.Ref{Platform: platformB, AssetID: assetID}]
	if !ok {
		return Spread{}, fmt.Errorf("%w: %s/%s", ErrPriceNotAvailable, platformB, assetID)
	}

	low, high := a, b
	if b.LastPrice.LessThan(a.LastPrice) {
		low, high = b, a
	}
	if !low.LastPrice.IsPositive() {
		return Spread{}, fmt.Errorf("%w: zero price on %s", ErrPriceNotAvailable, low.Platform)
	}
	bps, err := fixedpoint.MulDiv(high.LastPrice.Sub(low.LastPrice), fixedpoint.BPS, low.LastPrice)
	if err != nil {
		return Spread{}, err
	}
	return Spread{
		AssetID:      assetID,
		BuyPlatform:  low.Platform,
		SellPlatform: high.Platform,
		BuyPrice:     low.LastPrice,
		SellPrice:    high.LastPrice,
		Bps:          bps,
	}, nil
}

// Spreads returns every pairwise spread of at least minBps among platforms
// that have a usable price, widest first.
func (o *Oracle) Spreads(assetID string, platforms []string, minBps decimal.Decimal) []Spread {
	var out []Spread
	for i := 0; i < len(platforms); i++ {
		for j := i + 1; j < len(platforms); j++ {
			s, err := o.spread(assetID, platforms[i], platforms[j])
			if err != nil || s.Bps.LessThan(minBps) {
				continue
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bps.GreaterThan(out[j].Bps) })
	return out
}

// RequestCrossPlatformPrices records a request for fresh prices of assetId
// from each platform. The feed worker fulfills it asynchronously.
func (o *Oracle) RequestCrossPlatformPrices(caller common.Address, assetID string, platforms []string) (model.PriceRequest, error) {
	if err := assetref.ValidateAssetID(assetID); err != nil {
		return model.PriceRequest{}, err
	}
	seen := make(map[string]bool, len(platforms))
	var uniq []string
	for _, p := range platforms {
		if err := assetref.ValidatePlatform(p); err != nil {
			return model.PriceRequest{}, err
		}
		if !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	if len(uniq) == 0 {
		return model.PriceRequest{}, ErrNoPlatforms
	}

	o.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], o.nonce)
	id := crypto.Keccak256Hash([]byte(assetID), caller.Bytes(), n[:])

	req := &model.PriceRequest{
		RequestID:   id,
		AssetID:     assetID,
		Platforms:   uniq,
		RequestedBy: caller,
		RequestedAt: o.now(),
		Fulfilled:   make(map[string]time.Time),
	}
	o.requests[id] = req
	o.order = append(o.order, id)

	o.emit.Emit(model.EventPriceRequested, caller, id.Hex(), map[string]string{
		"asset_id":  assetID,
		"platforms": strings.Join(uniq, ","),
	})
	return copyRequest(req), nil
}

// FulfillPriceRequest applies one platform's answer to a request. Oracle only.
func (o *Oracle) FulfillPriceRequest(caller common.Address, id common.Hash, platform string, price decimal.Decimal) error {
	if caller != o.principals.Oracle {
		return ErrOnlyOracle
	}
	req, ok := o.requests[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id.Hex())
	}
	if !slices.Contains(req.Platforms, platform) {
		return fmt.Errorf("%w: %s", ErrPlatformNotInRequest, platform)
	}
	if err := fixedpoint.Validate(price); err != nil {
		return err
	}
	o.setPrice(caller, assetref.Ref{Platform: platform, AssetID: req.AssetID}, price)
	req.Fulfilled[platform] = o.now()
	return nil
}

// GetRequest returns a copy of a price request.
func (o *Oracle) GetRequest(id common.Hash) (model.PriceRequest, bool) {
	req, ok := o.requests[id]
	if !ok {
		return model.PriceRequest{}, false
	}
	return copyRequest(req), true
}

// PendingRequests returns requests with at least one unanswered platform,
// oldest first.
func (o *Oracle) PendingRequests() []model.PriceRequest {
	var out []model.PriceRequest
	for _, id := range o.order {
		if req := o.requests[id]; !req.Complete() {
			out = append(out, copyRequest(req))
		}
	}
	return out
}

func copyRequest(r *model.PriceRequest) model.PriceRequest {
	cp := *r
	cp.Platforms = append([]string(nil), r.Platforms...)
	cp.Fulfilled = make(map[string]time.Time, len(r.Fulfilled))
	for k, v := range r.Fulfilled {
		cp.Fulfilled[k] = v
	}
	return cp
}
