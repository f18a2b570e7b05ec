package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
)

// OrderBookEntry is a single limit order resting on the book.
type OrderBookEntry struct {
	Price     decimal.Decimal
	CreatedAt time.Time
	OrderID   string
	Order     *domain.Order
}

// PriceLevel aggregates the orders resting at one limit price.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity decimal.Decimal
	OrderCount    int
}

// buyLess orders buys by limit descending, then created_at ascending, then
// order_id ascending. Min() is the buy that triggers first on a falling
// market.
func buyLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// sellLess orders sells by limit ascending, then created_at ascending, then
// order_id ascending. Min() is the sell that triggers first on a rising
// market.
func sellLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// OrderBook holds the pending limit orders of one symbol in two B-trees
// with a secondary index for removal by order ID.
type OrderBook struct {
	symbol string
	mu     sync.Mutex
	buys   *btree.BTreeG[OrderBookEntry]
	sells  *btree.BTreeG[OrderBookEntry]
	index  map[string]OrderBookEntry // order_id → entry
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol: symbol,
		buys:   btree.NewG[OrderBookEntry](degree, buyLess),
		sells:  btree.NewG[OrderBookEntry](degree, sellLess),
		index:  make(map[string]OrderBookEntry),
	}
}

// Insert rests an order on the side matching its Side. Re-inserting an
// order ID replaces the previous entry.
func (ob *OrderBook) Insert(o *domain.Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.removeLocked(o.OrderID)
	cp := *o
	entry := OrderBookEntry{Price: o.LimitPrice, CreatedAt: o.CreatedAt, OrderID: o.OrderID, Order: &cp}
	if o.Side == domain.SideBuy {
		ob.buys.ReplaceOrInsert(entry)
	} else {
		ob.sells.ReplaceOrInsert(entry)
	}
	ob.index[o.OrderID] = entry
}

// Remove deletes an order by ID and reports whether it was on the book.
func (ob *OrderBook) Remove(orderID string) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.removeLocked(orderID)
}

func (ob *OrderBook) removeLocked(orderID string) bool {
	entry, ok := ob.index[orderID]
	if !ok {
		return false
	}
	delete(ob.index, orderID)
	if entry.Order.Side == domain.SideBuy {
		ob.buys.Delete(entry)
	} else {
		ob.sells.Delete(entry)
	}
	return true
}

// TakeCrossed removes and returns every order the market price satisfies:
// buys with limit >= price and sells with limit <= price, each side in
// priority order.
func (ob *OrderBook) TakeCrossed(price decimal.Decimal) []*domain.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var crossed []*domain.Order
	for {
		best, ok := ob.buys.Min()
		if !ok || best.Price.LessThan(price) {
			break
		}
		ob.buys.DeleteMin()
		delete(ob.index, best.OrderID)
		crossed = append(crossed, best.Order)
	}
	for {
		best, ok := ob.sells.Min()
		if !ok || best.Price.GreaterThan(price) {
			break
		}
		ob.sells.DeleteMin()
		delete(ob.index, best.OrderID)
		crossed = append(crossed, best.Order)
	}
	return crossed
}

// TopBuys returns up to n aggregated buy levels, highest limit first.
func (ob *OrderBook) TopBuys(n int) []PriceLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return topLevels(ob.buys, n)
}

// TopSells returns up to n aggregated sell levels, lowest limit first.
func (ob *OrderBook) TopSells(n int) []PriceLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return topLevels(ob.sells, n)
}

func topLevels(tree *btree.BTreeG[OrderBookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(entry.Price) {
			last := &levels[len(levels)-1]
			last.TotalQuantity = last.TotalQuantity.Add(entry.Order.Quantity)
			last.OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.Quantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// OrderIDsForAccount lists the IDs of the account's orders on this book.
func (ob *OrderBook) OrderIDsForAccount(accountID string) []string {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var ids []string
	for id, entry := range ob.index {
		if entry.Order.AccountID == accountID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of orders on both sides.
func (ob *OrderBook) Len() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.index)
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// Get returns the book for symbol, or nil if none exists.
func (bm *BookManager) Get(symbol string) *OrderBook {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.books[symbol]
}

// GetOrCreate returns the order book for the given symbol, creating one if
// it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}

// Symbols returns every symbol with a book, sorted.
func (bm *BookManager) Symbols() []string {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	out := make([]string, 0, len(bm.books))
	for sym, book := range bm.books {
		if book.Len() > 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
