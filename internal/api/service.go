// Package api provides the HTTP handlers for the tokenization registry, the
// pool engine, the price oracle and delegated automation.
//
// All monetary values use shopspring/decimal; never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/atmx/rwa-engine/internal/ledger"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/store"
)

// PrincipalHeader carries the caller's address. Authentication happens in
// front of this service.
const PrincipalHeader = "X-Principal"

// Service exposes the ledger over HTTP. Every mutating handler runs one
// ledger operation and returns its result with the committed events.
type Service struct {
	ledger  *ledger.Ledger
	journal store.Store
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new API service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(l *ledger.Ledger, journal store.Store, hub *WSHub) *Service {
	return &Service{ledger: l, journal: journal, wsHub: hub}
}

// Routes mounts every endpoint on r. Callers mount it under /api/v1.
func (s *Service) Routes(r chi.Router) {
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
	r.Get("/components", s.GetComponents)
	r.Get("/events", s.ListEvents)
	r.Get("/events/{eventID}", s.GetEvent)

	// Tokenization registry.
	r.Get("/platforms", s.ListPlatforms)
	r.Post("/platforms", s.RegisterPlatform)
	r.Get("/platforms/{platform}", s.GetPlatform)
	r.Put("/platforms/{platform}/status", s.SetPlatformStatus)
	r.Get("/platforms/{platform}/assets", s.ListAssets)
	r.Post("/assets", s.TokenizeAsset)
	r.Post("/assets/batch", s.BatchTokenize)
	r.Get("/assets/{platform}/{assetID}", s.GetAsset)
	r.Get("/assets/{platform}/{assetID}/token", s.GetTokenAddress)
	r.Post("/assets/{platform}/{assetID}/burn", s.BurnTokens)
	r.Put("/assets/{platform}/{assetID}/valuation", s.UpdateValuation)
	r.Get("/assets/{platform}/{assetID}/valuations", s.ValuationHistory)
	r.Post("/assets/{platform}/{assetID}/verify", s.VerifyBacking)

	// Token balances and allowances.
	r.Get("/tokens/{token}", s.GetToken)
	r.Get("/tokens/{token}/balances/{owner}", s.GetBalance)
	r.Get("/tokens/{token}/allowances/{owner}/{spender}", s.GetAllowance)
	r.Post("/tokens/{token}/transfer", s.Transfer)
	r.Post("/tokens/{token}/approve", s.Approve)

	// Pool engine.
	r.Get("/pools", s.ListPools)
	r.Post("/pools", s.CreatePool)
	r.Get("/pools/id/{poolID}", s.GetPoolByID)
	r.Get("/pools/{tokenA}/{tokenB}", s.GetPool)
	r.Put("/pools/{tokenA}/{tokenB}/fee", s.SetPoolFee)
	r.Put("/pools/{tokenA}/{tokenB}/status", s.SetPoolStatus)
	r.Post("/pools/{tokenA}/{tokenB}/liquidity", s.AddLiquidity)
	r.Post("/pools/{tokenA}/{tokenB}/liquidity/remove", s.RemoveLiquidity)
	r.Get("/pools/{tokenA}/{tokenB}/liquidity", s.ListProviders)
	r.Get("/pools/{tokenA}/{tokenB}/liquidity/{owner}", s.GetLiquidity)
	r.Get("/fees/default", s.GetDefaultFee)
	r.Put("/fees/default", s.SetDefaultFee)
	r.Post("/swap", s.Swap)
	r.Post("/swap/path", s.SwapPath)
	r.Get("/quote", s.Quote)
	r.Get("/route", s.Route)

	// Price oracle.
	r.Get("/prices/{platform}/{assetID}", s.GetPrice)
	r.Put("/prices/{platform}/{assetID}", s.UpdatePrice)
	r.Get("/arbitrage/{assetID}", s.Arbitrage)
	r.Get("/arbitrage/{assetID}/opportunities", s.Opportunities)
	r.Get("/price-requests", s.PendingRequests)
	r.Post("/price-requests", s.RequestPrices)
	r.Get("/price-requests/{requestID}", s.GetPriceRequest)
	r.Post("/price-requests/{requestID}/fulfill", s.FulfillPriceRequest)

	// Delegated automation.
	r.Put("/delegations", s.DelegateTrading)
	r.Get("/delegations/{user}", s.GetDelegation)
	r.Post("/trades", s.QueueTrade)
	r.Get("/trades/{tradeID}", s.GetTrade)
	r.Post("/trades/{tradeID}/execute", s.ExecuteTrade)
	r.Post("/trades/{tradeID}/cancel", s.CancelTrade)
	r.Post("/trades/{tradeID}/expire", s.ExpireTrade)
	r.Get("/users/{user}/trades", s.ListUserTrades)
}

// OpResponse is returned by every mutating endpoint.
type OpResponse struct {
	Result any           `json:"result,omitempty"`
	Events []model.Event `json:"events"`
}

// GetComponents handles GET /api/v1/components
// Returns the spender addresses callers approve before component calls.
func (s *Service) GetComponents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ledger.Components())
}

// ListEvents handles GET /api/v1/events
// Optional filters: ?kind=, ?actor=, ?subject=, ?after=, ?before= (RFC 3339),
// ?since= (sequence, exclusive) and ?limit= (most recent N).
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.EventFilter{
		Kind:    model.EventKind(q.Get("kind")),
		Actor:   q.Get("actor"),
		Subject: q.Get("subject"),
	}
	if a := f.Actor; a != "" && common.IsHexAddress(a) {
		f.Actor = common.HexToAddress(a).Hex()
	}
	for name, dst := range map[string]*time.Time{"after": &f.After, "before": &f.Before} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, name+" must be an RFC 3339 timestamp", http.StatusBadRequest)
				return
			}
			*dst = t
		}
	}
	if v := q.Get("since"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, "since must be a sequence number", http.StatusBadRequest)
			return
		}
		f.AfterSequence = seq
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	events, err := s.journal.ListEvents(r.Context(), f)
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}
func (s *Service) GetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.journal.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- Request helpers ---

// caller extracts the calling principal. It writes the error response and
// returns false when the header is missing, malformed or the zero address.
func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := strings.TrimSpace(r.Header.Get(PrincipalHeader))
	if v == "" {
		writeError(w, PrincipalHeader+" header is required", http.StatusUnauthorized)
		return common.Address{}, false
	}
	if !common.IsHexAddress(v) {
		writeError(w, PrincipalHeader+" must be a hex address", http.StatusBadRequest)
		return common.Address{}, false
	}
	addr := common.HexToAddress(v)
	if addr == (common.Address{}) {
		writeError(w, PrincipalHeader+" must not be the zero address", http.StatusUnauthorized)
		return common.Address{}, false
	}
	return addr, true
}

// addressParam parses a hex address URL parameter.
func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := chi.URLParam(r, name)
	if !common.IsHexAddress(v) {
		writeError(w, name+" must be a hex address", http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// hashParam parses a 32-byte hex URL parameter.
func hashParam(w http.ResponseWriter, r *http.Request, name string) (common.Hash, bool) {
	b, err := hexutil.Decode("0x" + strings.TrimPrefix(chi.URLParam(r, name), "0x"))
	if err != nil || len(b) != common.HashLength {
		writeError(w, name+" must be a 32-byte hex value", http.StatusBadRequest)
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOp(w http.ResponseWriter, status int, result any, events []model.Event) {
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, status, OpResponse{Result: result, Events: events})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeLedgerError maps a rejected ledger operation to its kind and status.
func writeLedgerError(w http.ResponseWriter, err error) {
	kind := ledger.ErrorKind(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

var kindStatus = map[string]int{
	ledger.KindPlatformExists:        http.StatusConflict,
	ledger.KindAssetAlreadyTokenized: http.StatusConflict,
	ledger.KindPoolExists:            http.StatusConflict,
	ledger.KindTradeNotPending:       http.StatusConflict,

	ledger.KindPlatformNotRegistered: http.StatusNotFound,
	ledger.KindTokenNotFound:         http.StatusNotFound,
	ledger.KindPoolNotFound:          http.StatusNotFound,
	ledger.KindTradeNotFound:         http.StatusNotFound,
	ledger.KindUnknownRequest:        http.StatusNotFound,
	ledger.KindPriceNotAvailable:     http.StatusNotFound,

	ledger.KindOnlyOracle:     http.StatusForbidden,
	ledger.KindOnlyGovernance: http.StatusForbidden,
	ledger.KindOnlyAIAgent:    http.StatusForbidden,

	ledger.KindIdenticalTokens: http.StatusBadRequest,
	ledger.KindFeeTooHigh:      http.StatusBadRequest,
	ledger.KindZeroAmount:      http.StatusBadRequest,
	ledger.KindInvalidAmount:   http.StatusBadRequest,
	ledger.KindInvalidPlatform: http.StatusBadRequest,
	ledger.KindInvalidAssetID:  http.StatusBadRequest,
	ledger.KindInvalidRequest:  http.StatusBadRequest,

	ledger.KindSlippageExceeded:      http.StatusUnprocessableEntity,
	ledger.KindInsufficientOutput:    http.StatusUnprocessableEntity,
	ledger.KindInsufficientLiquidity: http.StatusUnprocessableEntity,
	ledger.KindTradeLimitExceeded:    http.StatusUnprocessableEntity,
	ledger.KindAssetNotAllowed:       http.StatusUnprocessableEntity,
	ledger.KindTradeExpired:          http.StatusUnprocessableEntity,
	ledger.KindPoolInactive:          http.StatusUnprocessableEntity,
	ledger.KindInsufficientBalance:   http.StatusUnprocessableEntity,
	ledger.KindInsufficientAllowance: http.StatusUnprocessableEntity,
}
