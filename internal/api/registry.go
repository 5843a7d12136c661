package api

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/ledger"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/registry"
)

// RegisterPlatformRequest is the JSON body for POST /platforms.
type RegisterPlatformRequest struct {
	Name        string `json:"name"`
	APIEndpoint string `json:"api_endpoint"`
}

// StatusRequest toggles a platform or pool.
type StatusRequest struct {
	Active bool `json:"active"`
}

// BatchTokenizeRequest is the JSON body for POST /assets/batch.
type BatchTokenizeRequest struct {
	Assets []registry.TokenizeParams `json:"assets"`
}

// BatchItem is one element of a batch tokenize response.
type BatchItem struct {
	AssetID string          `json:"asset_id"`
	Token   *common.Address `json:"token,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`
}

// AmountRequest carries a single amount.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ValuationRequest is the JSON body for PUT .../valuation.
type ValuationRequest struct {
	Valuation decimal.Decimal `json:"valuation"`
}

// VerifyRequest carries a legal-document proof as 0x-prefixed hex.
type VerifyRequest struct {
	Proof hexutil.Bytes `json:"proof"`
}

// RegisterPlatform handles POST /api/v1/platforms
func (s *Service) RegisterPlatform(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req RegisterPlatformRequest
	if !decode(w, r, &req) {
		return
	}

	rec, events, err := s.ledger.RegisterPlatform(r.Context(), who, req.Name, req.APIEndpoint)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	slog.Info("platform registered", "platform", rec.Name, "endpoint", rec.APIEndpoint, "by", who.Hex())
	writeOp(w, http.StatusCreated, rec, events)
}

// SetPlatformStatus handles PUT /api/v1/platforms/{platform}/status
func (s *Service) SetPlatformStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.SetPlatformActive(r.Context(), who, chi.URLParam(r, "platform"), req.Active)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// ListPlatforms handles GET /api/v1/platforms
func (s *Service) ListPlatforms(w http.ResponseWriter, _ *http.Request) {
	platforms := s.ledger.ListPlatforms()
	if platforms == nil {
		platforms = []model.PlatformRecord{}
	}
	writeJSON(w, http.StatusOK, platforms)
}

// GetPlatform handles GET /api/v1/platforms/{platform}
func (s *Service) GetPlatform(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.ledger.GetPlatformInfo(chi.URLParam(r, "platform"))
	if !ok {
		writeError(w, "platform not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAssets handles GET /api/v1/platforms/{platform}/assets
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.ledger.ListAssets(chi.URLParam(r, "platform"))
	if assets == nil {
		assets = []model.AssetToken{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// TokenizeAsset handles POST /api/v1/assets
// The full supply is minted to the caller.
func (s *Service) TokenizeAsset(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req registry.TokenizeParams
	if !decode(w, r, &req) {
		return
	}

	addr, events, err := s.ledger.TokenizeAsset(r.Context(), who, req)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	slog.Info("asset tokenized",
		"platform", req.Platform,
		"asset", req.AssetID,
		"token", addr.Hex(),
		"supply", req.TotalSupply.String(),
		"valuation", req.Valuation.String(),
	)
	writeOp(w, http.StatusCreated, map[string]common.Address{"token": addr}, events)
}

// BatchTokenize handles POST /api/v1/assets/batch
// Elements succeed or fail independently; the response lines up with the
// request.
func (s *Service) BatchTokenize(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req BatchTokenizeRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Assets) == 0 {
		writeError(w, "assets must not be empty", http.StatusBadRequest)
		return
	}

	results, events, err := s.ledger.BatchTokenize(r.Context(), who, req.Assets)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	items := make([]BatchItem, len(results))
	for i, res := range results {
		items[i].AssetID = req.Assets[i].AssetID
		if res.Err != nil {
			items[i].Error = res.Err.Error()
			items[i].Kind = ledger.ErrorKind(res.Err)
			continue
		}
		tok := res.Token
		items[i].Token = &tok
	}
	writeOp(w, http.StatusOK, items, events)
}

// GetAsset handles GET /api/v1/assets/{platform}/{assetID}
func (s *Service) GetAsset(w http.ResponseWriter, r *http.Request) {
	meta, err := s.ledger.GetAssetMetadata(chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// GetTokenAddress handles GET /api/v1/assets/{platform}/{assetID}/token
func (s *Service) GetTokenAddress(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.ledger.GetTokenAddress(chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"))
	if !ok {
		writeError(w, "asset not tokenized", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]common.Address{"token": addr})
}

// BurnTokens handles POST /api/v1/assets/{platform}/{assetID}/burn
// The caller must have approved the registry component for amount.
func (s *Service) BurnTokens(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.BurnTokens(r.Context(), who, chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"), req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// UpdateValuation handles PUT /api/v1/assets/{platform}/{assetID}/valuation
func (s *Service) UpdateValuation(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req ValuationRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.UpdateValuation(r.Context(), who, chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"), req.Valuation)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// ValuationHistory handles GET /api/v1/assets/{platform}/{assetID}/valuations
func (s *Service) ValuationHistory(w http.ResponseWriter, r *http.Request) {
	points := s.ledger.ValuationHistory(chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"))
	if points == nil {
		points = []model.ValuationPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// VerifyBacking handles POST /api/v1/assets/{platform}/{assetID}/verify
func (s *Service) VerifyBacking(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	ok := s.ledger.VerifyAssetBacking(chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"), req.Proof)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": ok})
}

// --- Tokens ---

// TransferRequest is the JSON body for POST /tokens/{token}/transfer.
type TransferRequest struct {
	To     common.Address  `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// ApproveRequest is the JSON body for POST /tokens/{token}/approve.
type ApproveRequest struct {
	Spender common.Address  `json:"spender"`
	Amount  decimal.Decimal `json:"amount"`
}

// GetBalance handles GET /api/v1/tokens/{token}/balances/{owner}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	tok, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	bal, found := s.ledger.BalanceOf(tok, owner)
	if !found {
		writeError(w, "token not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// GetToken handles GET /api/v1/tokens/{token}
// Resolves a token address to its asset and lists holders.
func (s *Service) GetToken(w http.ResponseWriter, r *http.Request) {
	tok, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	info, found := s.ledger.TokenInfo(tok)
	if !found {
		writeError(w, "token not found", http.StatusNotFound)
		return
	}
	if info.Holders == nil {
		info.Holders = []ledger.TokenBalance{}
	}
	writeJSON(w, http.StatusOK, info)
}

// GetAllowance handles GET /api/v1/tokens/{token}/allowances/{owner}/{spender}
func (s *Service) GetAllowance(w http.ResponseWriter, r *http.Request) {
	tok, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := addressParam(w, r, "spender")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"allowance": s.ledger.Allowance(tok, owner, spender)})
}

// Transfer handles POST /api/v1/tokens/{token}/transfer
func (s *Service) Transfer(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	tok, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.Transfer(r.Context(), who, tok, req.To, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// Approve handles POST /api/v1/tokens/{token}/approve
// Component spender addresses come from GET /api/v1/components.
func (s *Service) Approve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	tok, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	var req ApproveRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.Approve(r.Context(), who, tok, req.Spender, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}
