package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/automation"
	"github.com/atmx/rwa-engine/internal/model"
)

// DelegateRequest is the JSON body for PUT /delegations. The caller is the
// delegating user.
type DelegateRequest struct {
	MaxTradeSize   decimal.Decimal `json:"max_trade_size"`
	MaxDailyVolume decimal.Decimal `json:"max_daily_volume"`
	AllowedAssets  []string        `json:"allowed_assets"`
}

// DelegateTrading handles PUT /api/v1/delegations
// Replaces the caller's trading permission.
func (s *Service) DelegateTrading(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req DelegateRequest
	if !decode(w, r, &req) {
		return
	}
	perm, events, err := s.ledger.DelegateTrading(r.Context(), who, req.MaxTradeSize, req.MaxDailyVolume, req.AllowedAssets)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, perm, events)
}

// GetDelegation handles GET /api/v1/delegations/{user}
func (s *Service) GetDelegation(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(w, r, "user")
	if !ok {
		return
	}
	perm, found := s.ledger.Permission(user)
	if !found {
		writeError(w, "no delegation for user", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

// QueueTrade handles POST /api/v1/trades
// Only the automation agent may queue.
func (s *Service) QueueTrade(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req automation.QueueParams
	if !decode(w, r, &req) {
		return
	}
	trade, events, err := s.ledger.QueueAutomatedTrade(r.Context(), who, req)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	slog.Info("trade queued",
		"trade_id", trade.TradeID.Hex(),
		"user", trade.User.Hex(),
		"sell", trade.SellAsset,
		"buy", trade.BuyAsset,
		"amount", trade.Amount.String(),
		"deadline", trade.Deadline,
	)
	writeOp(w, http.StatusCreated, trade, events)
}

// GetTrade handles GET /api/v1/trades/{tradeID}
func (s *Service) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := hashParam(w, r, "tradeID")
	if !ok {
		return
	}
	trade, found := s.ledger.GetTrade(id)
	if !found {
		writeError(w, "trade not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// ListUserTrades handles GET /api/v1/users/{user}/trades
func (s *Service) ListUserTrades(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(w, r, "user")
	if !ok {
		return
	}
	trades := s.ledger.TradesByUser(user)
	if trades == nil {
		trades = []model.QueuedTrade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

type tradeOp func(ctx context.Context, caller common.Address, id common.Hash) (model.QueuedTrade, []model.Event, error)

func handleTradeOp(w http.ResponseWriter, r *http.Request, op tradeOp, msg string) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := hashParam(w, r, "tradeID")
	if !ok {
		return
	}
	trade, events, err := op(r.Context(), who, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	slog.Info(msg,
		"trade_id", trade.TradeID.Hex(),
		"user", trade.User.Hex(),
		"status", trade.Status,
		"amount_out", trade.AmountOut.String(),
	)
	writeOp(w, http.StatusOK, trade, events)
}

// ExecuteTrade handles POST /api/v1/trades/{tradeID}/execute
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	handleTradeOp(w, r, s.ledger.ExecuteAutomatedTrade, "trade executed")
}

// CancelTrade handles POST /api/v1/trades/{tradeID}/cancel
// The agent or the trade's user may cancel a pending trade.
func (s *Service) CancelTrade(w http.ResponseWriter, r *http.Request) {
	handleTradeOp(w, r, s.ledger.CancelTrade, "trade cancelled")
}

// ExpireTrade handles POST /api/v1/trades/{tradeID}/expire
// Anyone may expire a pending trade past its deadline.
func (s *Service) ExpireTrade(w http.ResponseWriter, r *http.Request) {
	handleTradeOp(w, r, s.ledger.ExpireTrade, "trade expired")
}
