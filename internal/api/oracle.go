package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/oracle"
)

// PriceRequest is the JSON body for PUT /prices/{platform}/{assetID}.
type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// RequestPricesRequest is the JSON body for POST /price-requests.
type RequestPricesRequest struct {
	AssetID   string   `json:"asset_id"`
	Platforms []string `json:"platforms"`
}

// FulfillRequest is the JSON body for POST /price-requests/{id}/fulfill.
type FulfillRequest struct {
	Platform string          `json:"platform"`
	Price    decimal.Decimal `json:"price"`
}

// ArbitrageResponse is returned by GET /arbitrage/{assetID}.
type ArbitrageResponse struct {
	AssetID   string          `json:"asset_id"`
	PlatformA string          `json:"platform_a"`
	PlatformB string          `json:"platform_b"`
	SpreadBps decimal.Decimal `json:"spread_bps"`
}

// GetPrice handles GET /api/v1/prices/{platform}/{assetID}
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.ledger.GetPrice(chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"))
	if !ok {
		writeError(w, "price not available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdatePrice handles PUT /api/v1/prices/{platform}/{assetID}
func (s *Service) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req PriceRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.UpdatePrice(r.Context(), who, chi.URLParam(r, "platform"), chi.URLParam(r, "assetID"), req.Price)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// Arbitrage handles GET /api/v1/arbitrage/{assetID}?platform_a=&platform_b=
func (s *Service) Arbitrage(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	a, b := r.URL.Query().Get("platform_a"), r.URL.Query().Get("platform_b")
	if a == "" || b == "" {
		writeError(w, "platform_a and platform_b are required", http.StatusBadRequest)
		return
	}
	bps, err := s.ledger.CalculateArbitrageSpread(assetID, a, b)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ArbitrageResponse{AssetID: assetID, PlatformA: a, PlatformB: b, SpreadBps: bps})
}

// Opportunities handles GET /api/v1/arbitrage/{assetID}/opportunities
// ?platforms=a,b,c lists candidate venues; ?min_bps= drops narrow spreads.
func (s *Service) Opportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var platforms []string
	for _, p := range strings.Split(q.Get("platforms"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			platforms = append(platforms, p)
		}
	}
	if len(platforms) < 2 {
		writeError(w, "platforms must name at least two platforms", http.StatusBadRequest)
		return
	}
	minBps := decimal.Zero
	if v := q.Get("min_bps"); v != "" {
		var err error
		if minBps, err = fixedpoint.Parse(v); err != nil {
			writeError(w, "min_bps must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}
	spreads := s.ledger.Spreads(chi.URLParam(r, "assetID"), platforms, minBps)
	if spreads == nil {
		spreads = []oracle.Spread{}
	}
	writeJSON(w, http.StatusOK, spreads)
}

// RequestPrices handles POST /api/v1/price-requests
// Anyone may request; the price feed worker fulfills.
func (s *Service) RequestPrices(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req RequestPricesRequest
	if !decode(w, r, &req) {
		return
	}
	pr, events, err := s.ledger.RequestCrossPlatformPrices(r.Context(), who, req.AssetID, req.Platforms)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusCreated, pr, events)
}

// PendingRequests handles GET /api/v1/price-requests
func (s *Service) PendingRequests(w http.ResponseWriter, _ *http.Request) {
	reqs := s.ledger.PendingRequests()
	if reqs == nil {
		reqs = []model.PriceRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// GetPriceRequest handles GET /api/v1/price-requests/{requestID}
func (s *Service) GetPriceRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := hashParam(w, r, "requestID")
	if !ok {
		return
	}
	pr, found := s.ledger.GetPriceRequest(id)
	if !found {
		writeError(w, "price request not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.PriceRequest
		Complete bool `json:"complete"`
	}{pr, pr.Complete()})
}

// FulfillPriceRequest handles POST /api/v1/price-requests/{requestID}/fulfill
func (s *Service) FulfillPriceRequest(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := hashParam(w, r, "requestID")
	if !ok {
		return
	}
	var req FulfillRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.FulfillPriceRequest(r.Context(), who, id, req.Platform, req.Price)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, map[string]common.Hash{"request_id": id}, events)
}
