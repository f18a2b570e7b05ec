// Package engine rests limit orders on per-symbol books, triggers them when
// a quote crosses their limit, and expires them on schedule.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Filler executes an order whose limit the market price reached.
type Filler interface {
	FillOrder(ctx context.Context, order *domain.Order, price decimal.Decimal)
}

// OpenOrderSource lists open orders for rebuilding the books at startup.
type OpenOrderSource interface {
	ListOpen(ctx context.Context) ([]*domain.Order, error)
}

// Engine ties the order books and the expiry manager together. The store
// stays the source of truth for order state; the engine is an index of what
// to trigger and when.
type Engine struct {
	books  *BookManager
	expiry *ExpiryManager
	logger *slog.Logger

	filler Filler
}

// New creates an Engine.
func New(books *BookManager, expiry *ExpiryManager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		books:  books,
		expiry: expiry,
		logger: logger.With("component", "engine"),
	}
}

// SetFiller sets the callback for triggered orders. Call before the first
// quote arrives.
func (e *Engine) SetFiller(f Filler) {
	e.filler = f
}

// Add rests an open order on its book and schedules its expiry.
func (e *Engine) Add(o *domain.Order) {
	e.books.GetOrCreate(o.Symbol).Insert(o)
	e.expiry.Add(o)
}

// Remove takes an order off its book and out of the expiry schedule.
func (e *Engine) Remove(o *domain.Order) {
	if book := e.books.Get(o.Symbol); book != nil {
		book.Remove(o.OrderID)
	}
	e.expiry.Remove(o.OrderID)
}

// RemoveAccount drops every resting order of the account.
func (e *Engine) RemoveAccount(accountID string) int {
	removed := 0
	for _, sym := range e.books.Symbols() {
		book := e.books.Get(sym)
		for _, id := range book.OrderIDsForAccount(accountID) {
			if book.Remove(id) {
				e.expiry.Remove(id)
				removed++
			}
		}
	}
	return removed
}

// OnQuotes triggers every resting order the new prices cross. Fills run
// synchronously in book priority order.
func (e *Engine) OnQuotes(ctx context.Context, quotes []*domain.Quote) {
	for _, q := range quotes {
		book := e.books.Get(q.Symbol)
		if book == nil || !q.Price.IsPositive() {
			continue
		}
		for _, o := range book.TakeCrossed(q.Price) {
			e.expiry.Remove(o.OrderID)
			if e.filler == nil {
				e.logger.Warn("no filler configured, dropping triggered order", "order_id", o.OrderID)
				continue
			}
			e.filler.FillOrder(ctx, o, q.Price)
		}
	}
}

// Restore loads every open order into the books.
func (e *Engine) Restore(ctx context.Context, src OpenOrderSource) (int, error) {
	orders, err := src.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list open orders: %w", err)
	}
	for _, o := range orders {
		e.Add(o)
	}
	e.logger.Info("order books restored", "orders", len(orders))
	return len(orders), nil
}

// Depth returns up to n aggregated buy and sell levels for symbol.
func (e *Engine) Depth(symbol string, n int) (buys, sells []PriceLevel) {
	book := e.books.Get(symbol)
	if book == nil {
		return nil, nil
	}
	return book.TopBuys(n), book.TopSells(n)
}

// Symbols returns every symbol with resting orders.
func (e *Engine) Symbols() []string {
	return e.books.Symbols()
}
