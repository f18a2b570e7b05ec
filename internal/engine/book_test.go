package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// helper to create a resting limit order.
func newLimit(id, accountID string, side domain.Side, limit, qty string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderID:    id,
		AccountID:  accountID,
		Symbol:     "BTC",
		Side:       side,
		LimitPrice: d(limit),
		Quantity:   d(qty),
		Status:     domain.OrderStatusOpen,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(24 * time.Hour),
	}
}

func makeEntry(price string, createdAt time.Time, orderID string) OrderBookEntry {
	return OrderBookEntry{Price: d(price), CreatedAt: createdAt, OrderID: orderID}
}

func TestBuyLess(t *testing.T) {
	tests := []struct {
		name string
		a, b OrderBookEntry
		want bool
	}{
		{"higher price first", makeEntry("200", baseTime, "b"), makeEntry("100", baseTime, "a"), true},
		{"lower price later", makeEntry("100", baseTime, "a"), makeEntry("200", baseTime, "b"), false},
		{"earlier time first", makeEntry("100", baseTime, "b"), makeEntry("100", baseTime.Add(time.Second), "a"), true},
		{"smaller id first", makeEntry("100", baseTime, "a"), makeEntry("100", baseTime, "b"), true},
		{"equal scale ignored", makeEntry("100.0", baseTime, "a"), makeEntry("100", baseTime, "b"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buyLess(tt.a, tt.b); got != tt.want {
				t.Errorf("buyLess = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSellLess(t *testing.T) {
	tests := []struct {
		name string
		a, b OrderBookEntry
		want bool
	}{
		{"lower price first", makeEntry("100", baseTime, "b"), makeEntry("200", baseTime, "a"), true},
		{"higher price later", makeEntry("200", baseTime, "a"), makeEntry("100", baseTime, "b"), false},
		{"earlier time first", makeEntry("100", baseTime, "b"), makeEntry("100", baseTime.Add(time.Second), "a"), true},
		{"smaller id first", makeEntry("100", baseTime, "a"), makeEntry("100", baseTime, "b"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sellLess(tt.a, tt.b); got != tt.want {
				t.Errorf("sellLess = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderBook_InsertRemove(t *testing.T) {
	book := NewOrderBook("BTC")
	book.Insert(newLimit("o1", "acc", domain.SideBuy, "100", "1", baseTime))
	book.Insert(newLimit("o2", "acc", domain.SideSell, "120", "1", baseTime))

	if got := book.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	if !book.Remove("o1") {
		t.Fatal("expected o1 to be removed")
	}
	if book.Remove("o1") {
		t.Fatal("expected second removal of o1 to report false")
	}
	if got := book.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestOrderBook_InsertSameIDReplaces(t *testing.T) {
	book := NewOrderBook("BTC")
	book.Insert(newLimit("o1", "acc", domain.SideBuy, "100", "1", baseTime))
	book.Insert(newLimit("o1", "acc", domain.SideBuy, "90", "2", baseTime))

	if got := book.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	levels := book.TopBuys(5)
	if len(levels) != 1 || !levels[0].Price.Equal(d("90")) {
		t.Fatalf("levels = %+v, want single level at 90", levels)
	}
}

func TestOrderBook_InsertCopiesOrder(t *testing.T) {
	book := NewOrderBook("BTC")
	o := newLimit("o1", "acc", domain.SideBuy, "100", "1", baseTime)
	book.Insert(o)
	o.Quantity = d("999")

	crossed := book.TakeCrossed(d("100"))
	if len(crossed) != 1 {
		t.Fatalf("crossed = %d, want 1", len(crossed))
	}
	if !crossed[0].Quantity.Equal(d("1")) {
		t.Errorf("Quantity = %s, want 1", crossed[0].Quantity)
	}
}

func TestOrderBook_TakeCrossed_Buys(t *testing.T) {
	book := NewOrderBook("BTC")
	book.Insert(newLimit("low", "acc", domain.SideBuy, "90", "1", baseTime))
	book.Insert(newLimit("high", "acc", domain.SideBuy, "110", "1", baseTime))
	book.Insert(newLimit("mid", "acc", domain.SideBuy, "100", "1", baseTime))

	crossed := book.TakeCrossed(d("100"))
	if got := ids(crossed); got != "high,mid" {
		t.Fatalf("crossed = %s, want high,mid", got)
	}
	if got := book.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
}

func TestOrderBook_TakeCrossed_Sells(t *testing.T) {
	book := NewOrderBook("BTC")
	book.Insert(newLimit("s2", "acc", domain.SideSell, "105", "1", baseTime.Add(time.Second)))
	book.Insert(newLimit("s1", "acc", domain.SideSell, "105", "1", baseTime))
	book.Insert(newLimit("s3", "acc", domain.SideSell, "150", "1", baseTime))

	crossed := book.TakeCrossed(d("120"))
	if got := ids(crossed); got != "s1,s2" {
		t.Fatalf("crossed = %s, want s1,s2", got)
	}
}

func TestOrderBook_TakeCrossed_NothingCrossed(t *testing.T) {
	book := NewOrderBook("BTC")
	book.Insert(newLimit("b", "acc", domain.SideBuy, "90", "1", baseTime))
	book.Insert(newLimit("s", "acc", domain.SideSell, "110", "1", baseTime))

	if crossed := book.TakeCrossed(d("100")); len(crossed) != 0 {
		t.Fatalf("crossed = %s, want none", ids(crossed))
	}
	if got := book.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
}

func TestOrderBook_TopLevelsAggregate(t *testing.T) {
	book := NewOrderBook("BTC")
	book.Insert(newLimit("a", "acc", domain.SideBuy, "100", "1.5", baseTime))
	book.Insert(newLimit("b", "acc", domain.SideBuy, "100", "0.5", baseTime))
	book.Insert(newLimit("c", "acc", domain.SideBuy, "99", "3", baseTime))
	book.Insert(newLimit("d", "acc", domain.SideBuy, "98", "3", baseTime))

	levels := book.TopBuys(2)
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	if !levels[0].Price.Equal(d("100")) || !levels[0].TotalQuantity.Equal(d("2")) || levels[0].OrderCount != 2 {
		t.Errorf("level[0] = %+v", levels[0])
	}
	if !levels[1].Price.Equal(d("99")) || levels[1].OrderCount != 1 {
		t.Errorf("level[1] = %+v", levels[1])
	}
	if got := book.TopSells(5); len(got) != 0 {
		t.Errorf("TopSells = %+v, want empty", got)
	}
	if got := book.TopBuys(0); got != nil {
		t.Errorf("TopBuys(0) = %+v, want nil", got)
	}
}

func TestOrderBook_OrderIDsForAccount(t *testing.T) {
	book := NewOrderBook("BTC")
	book.Insert(newLimit("a1", "acc-a", domain.SideBuy, "100", "1", baseTime))
	book.Insert(newLimit("a2", "acc-a", domain.SideSell, "120", "1", baseTime))
	book.Insert(newLimit("b1", "acc-b", domain.SideBuy, "100", "1", baseTime))

	got := book.OrderIDsForAccount("acc-a")
	if len(got) != 2 {
		t.Fatalf("ids = %v, want 2", got)
	}
	if got := book.OrderIDsForAccount("nobody"); len(got) != 0 {
		t.Errorf("ids = %v, want none", got)
	}
}

func TestBookManager(t *testing.T) {
	bm := NewBookManager()
	if bm.Get("BTC") != nil {
		t.Fatal("expected no book before GetOrCreate")
	}
	book := bm.GetOrCreate("BTC")
	if bm.GetOrCreate("BTC") != book {
		t.Fatal("GetOrCreate returned a different book")
	}
	if got := bm.Symbols(); len(got) != 0 {
		t.Fatalf("Symbols = %v, want empty for empty books", got)
	}
	book.Insert(newLimit("o1", "acc", domain.SideBuy, "100", "1", baseTime))
	eth := bm.GetOrCreate("ETH")
	o := newLimit("o2", "acc", domain.SideBuy, "10", "1", baseTime)
	o.Symbol = "ETH"
	eth.Insert(o)

	got := bm.Symbols()
	if len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Errorf("Symbols = %v, want [BTC ETH]", got)
	}
}

func ids(orders []*domain.Order) string {
	out := ""
	for i, o := range orders {
		if i > 0 {
			out += ","
		}
		out += o.OrderID
	}
	return out
}
