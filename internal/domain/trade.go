package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an executed paper trade, a row of paper_trades.
type Trade struct {
	TradeID     string
	AccountID   string
	UserID      string
	OrderID     string // empty for market orders
	Symbol      string
	Side        Side
	OrderType   OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Total       decimal.Decimal // quantity × price
	Fee         decimal.Decimal
	RealizedPnL decimal.Decimal // zero for buys
	ExecutedAt  time.Time
}
