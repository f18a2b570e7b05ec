package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Position is an account's holding of a single symbol.
type Position struct {
	Symbol           string
	Quantity         decimal.Decimal
	ReservedQuantity decimal.Decimal // held by open sell orders
	AverageCost      decimal.Decimal // weighted average purchase price, fees excluded
}

// Account is a paper-trading account with a virtual USD balance.
//
// Invariants: CashBalance >= ReservedCash >= 0 and, for every position,
// Quantity >= ReservedQuantity >= 0.
type Account struct {
	AccountID      string
	UserID         string
	Name           string
	InitialBalance decimal.Decimal
	CashBalance    decimal.Decimal
	ReservedCash   decimal.Decimal // held by open buy orders
	Positions      map[string]*Position
	IsDefault      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount returns an account funded with initialBalance and no positions.
func NewAccount(accountID, userID, name string, initialBalance decimal.Decimal, now time.Time) *Account {
	return &Account{
		AccountID:      accountID,
		UserID:         userID,
		Name:           name,
		InitialBalance: initialBalance,
		CashBalance:    initialBalance,
		ReservedCash:   decimal.Zero,
		Positions:      make(map[string]*Position),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AvailableCash is the cash not held by open buy orders.
func (a *Account) AvailableCash() decimal.Decimal {
	return a.CashBalance.Sub(a.ReservedCash)
}

// AvailableQuantity is the quantity of symbol not held by open sell orders.
func (a *Account) AvailableQuantity(symbol string) decimal.Decimal {
	p, ok := a.Positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return p.Quantity.Sub(p.ReservedQuantity)
}

// Symbols returns the held symbols in sorted order.
func (a *Account) Symbols() []string {
	return slices.Sorted(maps.Keys(a.Positions))
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	c.Positions = make(map[string]*Position, len(a.Positions))
	for sym, p := range a.Positions {
		cp := *p
		c.Positions[sym] = &cp
	}
	return &c
}

// ApplyBuy debits qty*price+fee from available cash and adds qty to the
// symbol's position, updating its weighted average cost.
func (a *Account) ApplyBuy(symbol string, qty, price, fee decimal.Decimal) error {
	cost := qty.Mul(price).Add(fee)
	if a.AvailableCash().LessThan(cost) {
		return ErrInsufficientBalance
	}
	a.CashBalance = RoundAmount(a.CashBalance.Sub(cost))

	p, ok := a.Positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		a.Positions[symbol] = p
	}
	newQty := p.Quantity.Add(qty)
	p.AverageCost = p.Quantity.Mul(p.AverageCost).Add(qty.Mul(price)).DivRound(newQty, AmountScale)
	p.Quantity = newQty
	return nil
}

// ApplySell removes qty of symbol from the available position and credits
// qty*price-fee to cash. It returns the realized PnL of the sale.
func (a *Account) ApplySell(symbol string, qty, price, fee decimal.Decimal) (decimal.Decimal, error) {
	if a.AvailableQuantity(symbol).LessThan(qty) {
		return decimal.Zero, ErrInsufficientHoldings
	}
	p := a.Positions[symbol]

	a.CashBalance = RoundAmount(a.CashBalance.Add(qty.Mul(price)).Sub(fee))
	realized := RoundAmount(price.Sub(p.AverageCost).Mul(qty).Sub(fee))

	p.Quantity = p.Quantity.Sub(qty)
	if p.Quantity.IsZero() && p.ReservedQuantity.IsZero() {
		delete(a.Positions, symbol)
	}
	return realized, nil
}

// ReserveCash holds amount of available cash for an open buy order.
func (a *Account) ReserveCash(amount decimal.Decimal) error {
	if a.AvailableCash().LessThan(amount) {
		return ErrInsufficientBalance
	}
	a.ReservedCash = a.ReservedCash.Add(amount)
	return nil
}

// ReleaseCash returns previously reserved cash. It never releases more than
// is currently reserved.
func (a *Account) ReleaseCash(amount decimal.Decimal) {
	a.ReservedCash = decimal.Max(decimal.Zero, a.ReservedCash.Sub(amount))
}

// ReserveQuantity holds qty of symbol for an open sell order.
func (a *Account) ReserveQuantity(symbol string, qty decimal.Decimal) error {
	if a.AvailableQuantity(symbol).LessThan(qty) {
		return ErrInsufficientHoldings
	}
	p := a.Positions[symbol]
	p.ReservedQuantity = p.ReservedQuantity.Add(qty)
	return nil
}

// ReleaseQuantity returns previously reserved quantity of symbol.
func (a *Account) ReleaseQuantity(symbol string, qty decimal.Decimal) {
	p, ok := a.Positions[symbol]
	if !ok {
		return
	}
	p.ReservedQuantity = decimal.Max(decimal.Zero, p.ReservedQuantity.Sub(qty))
	if p.Quantity.IsZero() && p.ReservedQuantity.IsZero() {
		delete(a.Positions, symbol)
	}
}

// Reset restores the initial balance and clears all positions and
// reservations.
func (a *Account) Reset(now time.Time) {
	a.CashBalance = a.InitialBalance
	a.ReservedCash = decimal.Zero
	a.Positions = make(map[string]*Position)
	a.UpdatedAt = now
}
