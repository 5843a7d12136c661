package api

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/amm"
	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
)

// CreatePoolRequest is the JSON body for POST /pools. A missing fee_bps uses
// the engine default.
type CreatePoolRequest struct {
	TokenA common.Address `json:"token_a"`
	TokenB common.Address `json:"token_b"`
	FeeBps *uint16        `json:"fee_bps,omitempty"`
}

// FeeRequest sets a fee in basis points.
type FeeRequest struct {
	FeeBps uint16 `json:"fee_bps"`
}

// AddLiquidityRequest is the JSON body for POST /pools/{a}/{b}/liquidity.
type AddLiquidityRequest struct {
	AmountADesired decimal.Decimal `json:"amount_a_desired"`
	AmountBDesired decimal.Decimal `json:"amount_b_desired"`
	AmountAMin     decimal.Decimal `json:"amount_a_min"`
	AmountBMin     decimal.Decimal `json:"amount_b_min"`
}

// RemoveLiquidityRequest is the JSON body for POST /pools/{a}/{b}/liquidity/remove.
type RemoveLiquidityRequest struct {
	Liquidity  decimal.Decimal `json:"liquidity"`
	AmountAMin decimal.Decimal `json:"amount_a_min"`
	AmountBMin decimal.Decimal `json:"amount_b_min"`
}

// SwapRequest is the JSON body for POST /swap.
type SwapRequest struct {
	TokenIn      common.Address  `json:"token_in"`
	TokenOut     common.Address  `json:"token_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	AmountOutMin decimal.Decimal `json:"amount_out_min"`
}

// SwapPathRequest is the JSON body for POST /swap/path.
type SwapPathRequest struct {
	Path         []common.Address `json:"path"`
	AmountIn     decimal.Decimal  `json:"amount_in"`
	AmountOutMin decimal.Decimal  `json:"amount_out_min"`
}

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req CreatePoolRequest
	if !decode(w, r, &req) {
		return
	}
	pool, events, err := s.ledger.CreatePool(r.Context(), who, req.TokenA, req.TokenB, req.FeeBps)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	slog.Info("pool created",
		"pool", pool.ID.Hex(),
		"token0", pool.Token0.Hex(),
		"token1", pool.Token1.Hex(),
		"fee_bps", pool.SwapFeeBps,
	)
	writeOp(w, http.StatusCreated, pool, events)
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, _ *http.Request) {
	pools := s.ledger.ListPools()
	if pools == nil {
		pools = []model.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// pair parses the {tokenA}/{tokenB} route parameters.
func pair(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, bool) {
	a, ok := addressParam(w, r, "tokenA")
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	b, ok := addressParam(w, r, "tokenB")
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	return a, b, true
}

// GetPool handles GET /api/v1/pools/{tokenA}/{tokenB}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pair(w, r)
	if !ok {
		return
	}
	pool, found := s.ledger.GetPool(a, b)
	if !found {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// GetPoolByID handles GET /api/v1/pools/id/{poolID}
func (s *Service) GetPoolByID(w http.ResponseWriter, r *http.Request) {
	id, ok := hashParam(w, r, "poolID")
	if !ok {
		return
	}
	pool, found := s.ledger.PoolByID(id)
	if !found {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// SetPoolFee handles PUT /api/v1/pools/{tokenA}/{tokenB}/fee
func (s *Service) SetPoolFee(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	a, b, ok := pair(w, r)
	if !ok {
		return
	}
	var req FeeRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.SetSwapFee(r.Context(), who, a, b, req.FeeBps)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// SetPoolStatus handles PUT /api/v1/pools/{tokenA}/{tokenB}/status
func (s *Service) SetPoolStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	a, b, ok := pair(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.SetPoolActive(r.Context(), who, a, b, req.Active)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// AddLiquidity handles POST /api/v1/pools/{tokenA}/{tokenB}/liquidity
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	a, b, ok := pair(w, r)
	if !ok {
		return
	}
	var req AddLiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	res, events, err := s.ledger.AddLiquidity(r.Context(), who, a, b,
		req.AmountADesired, req.AmountBDesired, req.AmountAMin, req.AmountBMin)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	slog.Info("liquidity added",
		"pool", res.PoolID.Hex(),
		"provider", who.Hex(),
		"amount_a", res.AmountA.String(),
		"amount_b", res.AmountB.String(),
		"shares", res.Liquidity.String(),
	)
	writeOp(w, http.StatusOK, res, events)
}

// RemoveLiquidity handles POST /api/v1/pools/{tokenA}/{tokenB}/liquidity/remove
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	a, b, ok := pair(w, r)
	if !ok {
		return
	}
	var req RemoveLiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	res, events, err := s.ledger.RemoveLiquidity(r.Context(), who, a, b, req.Liquidity, req.AmountAMin, req.AmountBMin)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, res, events)
}

// ListProviders handles GET /api/v1/pools/{tokenA}/{tokenB}/liquidity
func (s *Service) ListProviders(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pair(w, r)
	if !ok {
		return
	}
	lps := s.ledger.LiquidityProviders(a, b)
	if lps == nil {
		lps = []amm.LPBalance{}
	}
	writeJSON(w, http.StatusOK, lps)
}

// GetLiquidity handles GET /api/v1/pools/{tokenA}/{tokenB}/liquidity/{owner}
func (s *Service) GetLiquidity(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pair(w, r)
	if !ok {
		return
	}
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"shares": s.ledger.LiquidityOf(a, b, owner)})
}

// GetDefaultFee handles GET /api/v1/fees/default
func (s *Service) GetDefaultFee(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, FeeRequest{FeeBps: s.ledger.DefaultSwapFee()})
}

// SetDefaultFee handles PUT /api/v1/fees/default
func (s *Service) SetDefaultFee(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req FeeRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := s.ledger.SetDefaultSwapFee(r.Context(), who, req.FeeBps)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, nil, events)
}

// Swap handles POST /api/v1/swap
// The caller must have approved the AMM component for amount_in.
func (s *Service) Swap(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req SwapRequest
	if !decode(w, r, &req) {
		return
	}
	out, events, err := s.ledger.Swap(r.Context(), who, req.TokenIn, req.TokenOut, req.AmountIn, req.AmountOutMin)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	slog.Info("swap executed",
		"trader", who.Hex(),
		"token_in", req.TokenIn.Hex(),
		"token_out", req.TokenOut.Hex(),
		"amount_in", req.AmountIn.String(),
		"amount_out", out.String(),
	)
	writeOp(w, http.StatusOK, map[string]decimal.Decimal{"amount_out": out}, events)
}

// SwapPath handles POST /api/v1/swap/path
func (s *Service) SwapPath(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req SwapPathRequest
	if !decode(w, r, &req) {
		return
	}
	out, events, err := s.ledger.SwapExactPath(r.Context(), who, req.Path, req.AmountIn, req.AmountOutMin)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeOp(w, http.StatusOK, map[string]decimal.Decimal{"amount_out": out}, events)
}

// quoteParams parses ?token_in=&token_out=&amount_in=.
func quoteParams(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, decimal.Decimal, bool) {
	q := r.URL.Query()
	in, out := q.Get("token_in"), q.Get("token_out")
	if !common.IsHexAddress(in) || !common.IsHexAddress(out) {
		writeError(w, "token_in and token_out must be hex addresses", http.StatusBadRequest)
		return common.Address{}, common.Address{}, decimal.Zero, false
	}
	amount, err := fixedpoint.Parse(q.Get("amount_in"))
	if err != nil {
		writeError(w, "amount_in must be a non-negative integer", http.StatusBadRequest)
		return common.Address{}, common.Address{}, decimal.Zero, false
	}
	return common.HexToAddress(in), common.HexToAddress(out), amount, true
}

// Quote handles GET /api/v1/quote
// Returns the single-pool output for amount_in, or 404 when no active pool
// can fill it.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	in, out, amount, ok := quoteParams(w, r)
	if !ok {
		return
	}
	amountOut, found := s.ledger.GetAmountOut(in, out, amount)
	if !found {
		writeError(w, "no quote available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"amount_out": amountOut})
}

// Route handles GET /api/v1/route
// An empty path means no route exists.
func (s *Service) Route(w http.ResponseWriter, r *http.Request) {
	in, out, amount, ok := quoteParams(w, r)
	if !ok {
		return
	}
	route := s.ledger.FindBestRoute(in, out, amount)
	if route.Path == nil {
		route.Path = []common.Address{}
	}
	writeJSON(w, http.StatusOK, route)
}
