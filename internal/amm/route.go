package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/cpmm"
	"github.com/atmx/rwa-engine/internal/model"
)

type hop struct {
	pool      common.Hash
	tokenIn   common.Address
	tokenOut  common.Address
	amountIn  decimal.Decimal
	amountOut decimal.Decimal
}

// simulate quotes a path hop by hop against shadow reserves, so a path that
// crosses the same pool twice sees its own earlier hop.
func (e *Engine) simulate(path []common.Address, amountIn decimal.Decimal) ([]hop, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: need at least two tokens", ErrInvalidPath)
	}
	shadow := make(map[common.Hash][2]decimal.Decimal)
	hops := make([]hop, 0, len(path)-1)
	amt := amountIn
	for i := 0; i+1 < len(path); i++ {
		in, out := path[i], path[i+1]
		if in == out {
			return nil, ErrIdenticalTokens
		}
		p, ok := e.pools[PoolID(in, out)]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, in.Hex(), out.Hex())
		}
		if !p.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrPoolInactive, p.ID.Hex())
		}
		r, seen := shadow[p.ID]
		if !seen {
			r = [2]decimal.Decimal{p.Reserve0, p.Reserve1}
		}
		rIn, rOut := r[0], r[1]
		if in != p.Token0 {
			rIn, rOut = r[1], r[0]
		}

		curve, err := cpmm.NewCurve(p.SwapFeeBps)
		if err != nil {
			return nil, err
		}
		got, err := curve.AmountOut(amt, rIn, rOut)
		switch err {
		case nil:
		case cpmm.ErrZeroAmount:
			return nil, ErrZeroAmount
		case cpmm.ErrInsufficientLiquidity:
			return nil, fmt.Errorf("%w: pool %s is empty", ErrInsufficientLiquidity, p.ID.Hex())
		default:
			return nil, err
		}

		rIn, rOut = rIn.Add(amt), rOut.Sub(got)
		if in == p.Token0 {
			shadow[p.ID] = [2]decimal.Decimal{rIn, rOut}
		} else {
			shadow[p.ID] = [2]decimal.Decimal{rOut, rIn}
		}
		hops = append(hops, hop{pool: p.ID, tokenIn: in, tokenOut: out, amountIn: amt, amountOut: got})
		amt = got
	}
	return hops, nil
}

// FindBestRoute searches every simple path of up to MaxHops pools from
// tokenIn to tokenOut and returns the one with the largest output. Ties go to
// the shorter path. An empty route means nothing can fill the trade.
func (e *Engine) FindBestRoute(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) model.Route {
	best := model.Route{Path: []common.Address{}, AmountOut: decimal.Zero}
	if tokenIn == tokenOut || !amountIn.IsPositive() {
		return best
	}

	visited := map[common.Address]bool{tokenIn: true}
	path := []common.Address{tokenIn}

	var walk func(cur common.Address, amt decimal.Decimal)
	walk = func(cur common.Address, amt decimal.Decimal) {
		if len(path)-1 >= e.cfg.MaxHops {
			return
		}
		for _, id := range e.adjacency[cur] {
			p := e.pools[id]
			if !p.IsActive {
				continue
			}
			next := p.Token1
			if next == cur {
				next = p.Token0
			}
			if visited[next] {
				continue
			}
			hops, err := e.simulate([]common.Address{cur, next}, amt)
			if err != nil || !hops[0].amountOut.IsPositive() {
				continue
			}
			got := hops[0].amountOut

			path = append(path, next)
			if next == tokenOut {
				if better(got, len(path), best) {
					best = model.Route{Path: append([]common.Address(nil), path...), AmountOut: got}
				}
			} else {
				visited[next] = true
				walk(next, got)
				visited[next] = false
			}
			path = path[:len(path)-1]
		}
	}
	walk(tokenIn, amountIn)
	return best
}

func better(amount decimal.Decimal, pathLen int, cur model.Route) bool {
	if len(cur.Path) == 0 {
		return true
	}
	if amount.GreaterThan(cur.AmountOut) {
		return true
	}
	return amount.Equal(cur.AmountOut) && pathLen < len(cur.Path)
}
