// Package token implements the fungible balance ledger behind every tokenized
// asset: balances, allowances, transfers and burns, keyed by token address.
//
// Bank does not lock. The ledger serializes every call.
package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/fixedpoint"
	"github.com/atmx/rwa-engine/internal/model"
)

var (
	ErrUnknownToken          = errors.New("token: unknown token")
	ErrTokenExists           = errors.New("token: token already exists")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrZeroAddress           = errors.New("token: zero address")
)

type ledgerToken struct {
	symbol     string
	supply     decimal.Decimal
	balances   map[common.Address]decimal.Decimal
	allowances map[common.Address]map[common.Address]decimal.Decimal
}

// Bank holds the balance ledgers of all tokens.
type Bank struct {
	tokens map[common.Address]*ledgerToken
	emit   model.Emitter
}

// NewBank creates an empty bank. emit may be nil.
func NewBank(emit model.Emitter) *Bank {
	return &Bank{
		tokens: make(map[common.Address]*ledgerToken),
		emit:   emit,
	}
}

// Create registers a new token with zero supply.
func (b *Bank) Create(addr common.Address, symbol string) error {
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, ok := b.tokens[addr]; ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, addr.Hex())
	}
	b.tokens[addr] = &ledgerToken{
		symbol:     symbol,
		supply:     decimal.Zero,
		balances:   make(map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
	return nil
}

// Exists reports whether addr is a known token.
func (b *Bank) Exists(addr common.Address) bool {
	_, ok := b.tokens[addr]
	return ok
}

// Symbol returns the token's display symbol.
func (b *Bank) Symbol(addr common.Address) string {
	if t, ok := b.tokens[addr]; ok {
		return t.symbol
	}
	return ""
}

// TotalSupply returns the outstanding supply of a token.
func (b *Bank) TotalSupply(addr common.Address) decimal.Decimal {
	if t, ok := b.tokens[addr]; ok {
		return t.supply
	}
	return decimal.Zero
}

// BalanceOf returns owner's balance of a token; zero for unknown tokens.
func (b *Bank) BalanceOf(addr, owner common.Address) decimal.Decimal {
	if t, ok := b.tokens[addr]; ok {
		return t.balances[owner]
	}
	return decimal.Zero
}

// Allowance returns how much spender may pull from owner.
func (b *Bank) Allowance(addr, owner, spender common.Address) decimal.Decimal {
	t, ok := b.tokens[addr]
	if !ok {
		return decimal.Zero
	}
	return t.allowances[owner][spender]
}

// Mint credits amount to `to` and increases supply.
func (b *Bank) Mint(addr, to common.Address, amount decimal.Decimal) error {
	t, err := b.get(addr)
	if err != nil {
		return err
	}
	if err := fixedpoint.Validate(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	t.supply = t.supply.Add(amount)
	t.balances[to] = t.balances[to].Add(amount)
	b.emitTransfer(addr, common.Address{}, to, amount)
	return nil
}

// Transfer moves amount from `from` to `to`.
func (b *Bank) Transfer(addr, from, to common.Address, amount decimal.Decimal) error {
	t, err := b.get(addr)
	if err != nil {
		return err
	}
	if err := b.checkTransfer(t, from, to, amount); err != nil {
		return err
	}
	t.balances[from] = t.balances[from].Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	b.emitTransfer(addr, from, to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance, replacing any
// previous value.
func (b *Bank) Approve(addr, owner, spender common.Address, amount decimal.Decimal) error {
	t, err := b.get(addr)
	if err != nil {
		return err
	}
	if err := fixedpoint.Validate(amount); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]decimal.Decimal)
	}
	t.allowances[owner][spender] = amount
	if b.emit != nil {
		b.emit.Emit(model.EventApproval, owner, addr.Hex(), map[string]string{
			"spender": spender.Hex(),
			"amount":  amount.String(),
		})
	}
	return nil
}

// CheckTransferFrom reports whether TransferFrom would succeed, without
// mutating anything.
func (b *Bank) CheckTransferFrom(addr, spender, from common.Address, amount decimal.Decimal) error {
	t, err := b.get(addr)
	if err != nil {
		return err
	}
	if err := fixedpoint.Validate(amount); err != nil {
		return err
	}
	if t.allowances[from][spender].LessThan(amount) {
		return fmt.Errorf("%w: %s may pull %s of %s, needs %s",
			ErrInsufficientAllowance, spender.Hex(), t.allowances[from][spender], from.Hex(), amount)
	}
	if t.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s",
			ErrInsufficientBalance, from.Hex(), t.balances[from], amount)
	}
	return nil
}

// TransferFrom moves amount from `from` to `to` using spender's allowance.
func (b *Bank) TransferFrom(addr, spender, from, to common.Address, amount decimal.Decimal) error {
	if err := b.CheckTransferFrom(addr, spender, from, amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	t := b.tokens[addr]
	t.allowances[from][spender] = t.allowances[from][spender].Sub(amount)
	t.balances[from] = t.balances[from].Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	b.emitTransfer(addr, from, to, amount)
	return nil
}

// BurnFrom destroys amount of from's balance using spender's allowance.
func (b *Bank) BurnFrom(addr, spender, from common.Address, amount decimal.Decimal) error {
	if err := b.CheckTransferFrom(addr, spender, from, amount); err != nil {
		return err
	}
	t := b.tokens[addr]
	t.allowances[from][spender] = t.allowances[from][spender].Sub(amount)
	t.balances[from] = t.balances[from].Sub(amount)
	t.supply = t.supply.Sub(amount)
	b.emitTransfer(addr, from, common.Address{}, amount)
	return nil
}

// Holders returns every address with a non-zero balance of a token.
func (b *Bank) Holders(addr common.Address) map[common.Address]decimal.Decimal {
	out := make(map[common.Address]decimal.Decimal)
	if t, ok := b.tokens[addr]; ok {
		for owner, bal := range t.balances {
			if bal.IsPositive() {
				out[owner] = bal
			}
		}
	}
	return out
}

func (b *Bank) get(addr common.Address) (*ledgerToken, error) {
	t, ok := b.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return t, nil
}

func (b *Bank) checkTransfer(t *ledgerToken, from, to common.Address, amount decimal.Decimal) error {
	if err := fixedpoint.Validate(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if t.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s",
			ErrInsufficientBalance, from.Hex(), t.balances[from], amount)
	}
	return nil
}

func (b *Bank) emitTransfer(addr, from, to common.Address, amount decimal.Decimal) {
	if b.emit == nil {
		return
	}
	b.emit.Emit(model.EventTransfer, from, addr.Hex(), map[string]string{
		"from":   from.Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
}
