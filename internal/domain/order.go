package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes orders executed immediately at the latest quote
// from orders resting until the market reaches a limit price.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Side indicates whether an order buys or sells the symbol.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus represents the lifecycle state of a limit order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is a limit order resting against the account's balance until it is
// filled, cancelled, expired or rejected. Market orders execute immediately
// and only leave a Trade behind.
type Order struct {
	OrderID      string
	AccountID    string
	UserID       string
	Symbol       string
	Side         Side
	LimitPrice   decimal.Decimal
	Quantity     decimal.Decimal
	Reserved     decimal.Decimal // cash for buys, quantity for sells
	Status       OrderStatus
	TradeID      string // set once filled
	RejectReason string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	FilledAt     *time.Time
	CancelledAt  *time.Time
	ExpiredAt    *time.Time
}

// IsOpen reports whether the order still holds a reservation.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// Crosses reports whether a market price satisfies the order's limit.
func (o *Order) Crosses(price decimal.Decimal) bool {
	if o.Side == SideBuy {
		return price.LessThanOrEqual(o.LimitPrice)
	}
	return price.GreaterThanOrEqual(o.LimitPrice)
}

// BuyReservation is the cash held for a buy limit order: the limit notional
// plus the fee it would incur at that price.
func BuyReservation(qty, limitPrice, feeRate decimal.Decimal) decimal.Decimal {
	notional := qty.Mul(limitPrice)
	return RoundAmount(notional.Add(notional.Mul(feeRate)))
}

// ValidSide reports whether s is a known side.
func ValidSide(s Side) bool {
	return s == SideBuy || s == SideSell
}

// ValidOrderType reports whether t is a known order type.
func ValidOrderType(t OrderType) bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusOpen, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}
