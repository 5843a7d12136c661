// Package registry maps (platform, assetId) pairs to issued tokens and owns
// the custodial platform records and per-asset valuation history.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/assetref"
	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/token"
)

// Address is the registry's spender identity. Holders approve it before
// BurnTokens can debit their balance.
var Address = common.BytesToAddress(crypto.Keccak256([]byte("rwa-engine/registry"))[12:])

var (
	ErrPlatformExists        = errors.New("registry: platform already registered")
	ErrPlatformNotRegistered = errors.New("registry: platform not registered or inactive")
	ErrAssetAlreadyTokenized = errors.New("registry: asset already tokenized")
	ErrTokenNotFound         = errors.New("registry: token not found")
	ErrOnlyOracle            = errors.New("registry: caller is not the oracle")
	ErrOnlyGovernance        = errors.New("registry: caller is not governance")
	ErrZeroSupply            = errors.New("registry: total supply must be positive")
)

// TokenizeParams describes one asset to tokenize.
type TokenizeParams struct {
	Platform    string          `json:"platform"`
	AssetID     string          `json:"asset_id"`
	TotalSupply decimal.Decimal `json:"total_supply"`
	AssetType   string          `json:"asset_type"`
	Subcategory string          `json:"subcategory"`
	LegalHash   common.Hash     `json:"legal_hash"`
	Valuation   decimal.Decimal `json:"valuation"`
	SharePrice  decimal.Decimal `json:"share_price"`
	Currency    string          `json:"currency"`
}

// BatchResult is the outcome of one element of BatchTokenize.
type BatchResult struct {
	Token common.Address
	Err   error
}

// Registry is the tokenization registry. It does not lock; callers serialize.
type Registry struct {
	bank       *token.Bank
	emit       model.Emitter
	now        model.Clock
	principals model.Principals

	platforms map[string]*model.PlatformRecord
	assets    map[assetref.Ref]*model.AssetToken
	byToken   map[common.Address]assetref.Ref
	history   map[assetref.Ref][]model.ValuationPoint

	// issued is the supply minted at tokenization. An asset contributes
	// LastValuation * TotalSupply / issued to its platform's TVL.
	issued map[assetref.Ref]decimal.Decimal
}

// New creates an empty registry issuing tokens into bank.
func New(bank *token.Bank, emit model.Emitter, now model.Clock, p model.Principals) *Registry {
	return &Registry{
		bank:       bank,
		emit:       emit,
		now:        now,
		principals: p,
		platforms:  make(map[string]*model.PlatformRecord),
		assets:     make(map[assetref.Ref]*model.AssetToken),
		byToken:    make(map[common.Address]assetref.Ref),
		history:    make(map[assetref.Ref][]model.ValuationPoint),
		issued:     make(map[assetref.Ref]decimal.Decimal),
	}
}

// TokenAddress derives the deterministic token identity of an asset.
func TokenAddress(platform, assetID string) common.Address {
	h := crypto.Keccak256([]byte("rwa-token"), []byte(platform), []byte{0}, []byte(assetID))
	return common.BytesToAddress(h[12:])
}

// RegisterPlatform creates an active platform record with zero counters.
func (r *Registry) RegisterPlatform(caller common.Address, name, apiEndpoint string) (*model.PlatformRecord, error) {
	if err := assetref.ValidatePlatform(name); err != nil {
		return nil, err
	}
	if _, ok := r.platforms[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPlatformExists, name)
	}
	p := &model.PlatformRecord{
		Name:             name,
		APIEndpoint:      apiEndpoint,
		IsActive:         true,
		TotalValueLocked: decimal.Zero,
		RegisteredAt:     r.now(),
	}
	r.platforms[name] = p
	r.emit.Emit(model.EventPlatformRegistered, caller, name, map[string]string{
		"api_endpoint": apiEndpoint,
	})
	cp := *p
	return &cp, nil
}

// SetPlatformActive toggles a platform. Governance only.
func (r *Registry) SetPlatformActive(caller common.Address, name string, active bool) error {
	if caller != r.principals.Governance {
		return ErrOnlyGovernance
	}
	p, ok := r.platforms[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlatformNotRegistered, name)
	}
	p.IsActive = active
	r.emit.Emit(model.EventPlatformStatus, caller, name, map[string]string{
		"active": fmt.Sprint(active),
	})
	return nil
}

// TokenizeAsset issues a new token for (platform, assetId) and mints the full
// supply to caller. Every failure is detected before the bank is touched.
func (r *Registry) TokenizeAsset(caller common.Address, p TokenizeParams) (common.Address, error) {
	ref, assetType, err := r.checkTokenize(caller, p)
	if err != nil {
		return common.Address{}, err
	}

	addr := TokenAddress(ref.Platform, ref.AssetID)
	if err := r.bank.Create(addr, ref.AssetID); err != nil {
		return common.Address{}, err
	}
	if err := r.bank.Mint(addr, caller, p.TotalSupply); err != nil {
		return common.Address{}, err
	}

	now := r.now()
	r.assets[ref] = &model.AssetToken{
		Token:              addr,
		Platform:           ref.Platform,
		AssetID:            ref.AssetID,
		TotalSupply:        p.TotalSupply,
		AssetType:          assetType,
		Subcategory:        p.Subcategory,
		LegalHash:          p.LegalHash,
		LastValuation:      p.Valuation,
		ValuationTimestamp: now,
		SharePrice:         p.SharePrice,
		AvailableShares:    p.TotalSupply,
		Currency:           p.Currency,
		Issuer:             caller,
		CreatedAt:          now,
	}
	r.byToken[addr] = ref
	r.history[ref] = []model.ValuationPoint{{Valuation: p.Valuation, Timestamp: now}}
	r.issued[ref] = p.TotalSupply

	plat := r.platforms[ref.Platform]
	plat.TotalAssetsTokenized++
	plat.TotalValueLocked = plat.TotalValueLocked.Add(p.Valuation)

	r.emit.Emit(model.EventAssetTokenized, caller, ref.String(), map[string]string{
		"token":        addr.Hex(),
		"total_supply": p.TotalSupply.String(),
		"valuation":    p.Valuation.String(),
		"asset_type":   assetType,
	})
	return addr, nil
}

// BatchTokenize tokenizes each element independently. A failing element does
// not roll back earlier ones; results line up with the input.
func (r *Registry) BatchTokenize(caller common.Address, params []TokenizeParams) []BatchResult {
	out := make([]BatchResult, len(params))
	for i, p := range params {
		addr, err := r.TokenizeAsset(caller, p)
		out[i] = BatchResult{Token: addr, Err: err}
	}
	return out
}

func (r *Registry) checkTokenize(caller common.Address, p TokenizeParams) (assetref.Ref, string, error) {
	ref, err := assetref.New(p.Platform, p.AssetID)
	if err != nil {
		return ref, "", err
	}
	if caller == (common.Address{}) {
		return ref, "", fmt.Errorf("%w: issuer", token.ErrZeroAddress)
	}
	plat, ok := r.platforms[ref.Platform]
	if !ok || !plat.IsActive {
		return ref, "", fmt.Errorf("%w: %s", ErrPlatformNotRegistered, ref.Platform)
	}
	if _, ok := r.assets[ref]; ok || r.bank.Exists(TokenAddress(ref.Platform, ref.AssetID)) {
		return ref, "", fmt.Errorf("%w: %s", ErrAssetAlreadyTokenized, ref)
	}
	assetType, err := assetref.ValidateType(p.AssetType)
	if err != nil {
		return ref, "", err
	}
	if !p.TotalSupply.IsPositive() {
		return ref, "", ErrZeroSupply
	}
	for _, v := range []decimal.Decimal{p.TotalSupply, p.Valuation, p.SharePrice} {
		if err := fixedpoint.Validate(v); err != nil {
			return ref, "", err
		}
	}
	return ref, assetType, nil
}

// BurnTokens destroys amount of caller's holding using the allowance granted
// to Address. Supply, available shares and platform TVL shrink; the asset's
// valuation is left to the oracle.
func (r *Registry) BurnTokens(caller common.Address, platform, assetID string, amount decimal.Decimal) error {
	a, err := r.asset(platform, assetID)
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: burn amount %s", fixedpoint.ErrInvalidAmount, amount)
	}
	ref := assetref.Ref{Platform: a.Platform, AssetID: a.AssetID}
	supplyAfter := a.TotalSupply.Sub(amount)
	if supplyAfter.IsNegative() {
		supplyAfter = decimal.Zero
	}
	lockedBefore, err := r.lockedValue(ref, a.LastValuation, a.TotalSupply)
	if err != nil {
		return err
	}
	lockedAfter, err := r.lockedValue(ref, a.LastValuation, supplyAfter)
	if err != nil {
		return err
	}
	if err := r.bank.BurnFrom(a.Token, Address, caller, amount); err != nil {
		return err
	}

	valueBurned := lockedBefore.Sub(lockedAfter)
	a.TotalSupply = supplyAfter
	a.AvailableShares = decimal.Max(a.AvailableShares.Sub(amount), decimal.Zero)
	plat := r.platforms[a.Platform]
	plat.TotalValueLocked = decimal.Max(plat.TotalValueLocked.Sub(valueBurned), decimal.Zero)

	r.emit.Emit(model.EventTokensBurned, caller, ref.String(), map[string]string{
		"token":        a.Token.Hex(),
		"amount":       amount.String(),
		"value_burned": valueBurned.String(),
	})
	return nil
}

// UpdateValuation records a new valuation for an asset. Oracle only. TVL
// moves by the change in the asset's locked value, which scales the
// valuation by the share of issued supply still outstanding.
func (r *Registry) UpdateValuation(caller common.Address, platform, assetID string, valuation decimal.Decimal) error {
	if caller != r.principals.Oracle {
		return ErrOnlyOracle
	}
	a, err := r.asset(platform, assetID)
	if err != nil {
		return err
	}
	if err := fixedpoint.Validate(valuation); err != nil {
		return err
	}
	ref := assetref.Ref{Platform: a.Platform, AssetID: a.AssetID}
	lockedBefore, err := r.lockedValue(ref, a.LastValuation, a.TotalSupply)
	if err != nil {
		return err
	}
	lockedAfter, err := r.lockedValue(ref, valuation, a.TotalSupply)
	if err != nil {
		return err
	}

	now := r.now()
	delta := valuation.Sub(a.LastValuation)
	a.LastValuation = valuation
	a.ValuationTimestamp = now
	plat := r.platforms[a.Platform]
	plat.TotalValueLocked = decimal.Max(plat.TotalValueLocked.Add(lockedAfter.Sub(lockedBefore)), decimal.Zero)

	r.history[ref] = append(r.history[ref], model.ValuationPoint{Valuation: valuation, Timestamp: now})
	r.emit.Emit(model.EventValuationUpdated, caller, ref.String(), map[string]string{
		"valuation": valuation.String(),
		"delta":     delta.String(),
		"tvl_delta": lockedAfter.Sub(lockedBefore).String(),
	})
	return nil
}

// lockedValue is the part of valuation backed by supply tokens still in
// circulation.
func (r *Registry) lockedValue(ref assetref.Ref, valuation, supply decimal.Decimal) (decimal.Decimal, error) {
	issued := r.issued[ref]
	if supply.Equal(issued) {
		return valuation, nil
	}
	return fixedpoint.MulDiv(valuation, supply, issued)
}

// GetAssetMetadata returns a copy of the asset record.
func (r *Registry) GetAssetMetadata(platform, assetID string) (model.AssetToken, error) {
	a, err := r.asset(platform, assetID)
	if err != nil {
		return model.AssetToken{}, err
	}
	return *a, nil
}

// GetTokenAddress resolves an asset to its token. ok is false when the asset
// has not been tokenized.
func (r *Registry) GetTokenAddress(platform, assetID string) (common.Address, bool) {
	a, ok := r.assets[assetref.Ref{Platform: platform, AssetID: assetID}]
	if !ok {
		return common.Address{}, false
	}
	return a.Token, true
}

// GetPlatformInfo returns a copy of the platform record.
func (r *Registry) GetPlatformInfo(name string) (model.PlatformRecord, bool) {
	p, ok := r.platforms[name]
	if !ok {
		return model.PlatformRecord{}, false
	}
	return *p, true
}

// VerifyAssetBacking is a provenance attestation hook. It returns false for
// unknown assets and never fails.
func (r *Registry) VerifyAssetBacking(platform, assetID string, proof []byte) bool {
	a, ok := r.assets[assetref.Ref{Platform: platform, AssetID: assetID}]
	if !ok {
		return false
	}
	if a.LegalHash == (common.Hash{}) {
		return len(proof) > 0
	}
	return crypto.Keccak256Hash(proof) == a.LegalHash
}

// ValuationHistory returns the valuation points of an asset, oldest first.
func (r *Registry) ValuationHistory(platform, assetID string) []model.ValuationPoint {
	h := r.history[assetref.Ref{Platform: platform, AssetID: assetID}]
	return append([]model.ValuationPoint(nil), h...)
}

// ListPlatforms returns all platforms sorted by name.
func (r *Registry) ListPlatforms() []model.PlatformRecord {
	out := make([]model.PlatformRecord, 0, len(r.platforms))
	for _, p := range r.platforms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListAssets returns the assets of one platform, or all assets when platform
// is empty, sorted by reference.
func (r *Registry) ListAssets(platform string) []model.AssetToken {
	var out []model.AssetToken
	for ref, a := range r.assets {
		if platform == "" || ref.Platform == platform {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}

// AssetByToken resolves a token address back to its asset.
func (r *Registry) AssetByToken(addr common.Address) (model.AssetToken, bool) {
	ref, ok := r.byToken[addr]
	if !ok {
		return model.AssetToken{}, false
	}
	return *r.assets[ref], true
}

// IsToken reports whether addr was issued by this registry.
func (r *Registry) IsToken(addr common.Address) bool {
	_, ok := r.byToken[addr]
	return ok
}

// Bank exposes the balance ledger shared with the AMM and automation engine.
func (r *Registry) Bank() *token.Bank {
	return r.bank
}

func (r *Registry) asset(platform, assetID string) (*model.AssetToken, error) {
	a, ok := r.assets[assetref.Ref{Platform: platform, AssetID: assetID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrTokenNotFound, platform, assetID)
	}
	return a, nil
}
