package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/marketdata"
	"github.com/efreitasn/papertrader/internal/store"
)

type fakeFetcher struct {
	mu      sync.Mutex
	markets map[string]marketdata.Market
	calls   [][]string
	err     error
}

func (f *fakeFetcher) Name() string { return "coingecko" }

func (f *fakeFetcher) GetMarkets(_ context.Context, assetIDs []string) ([]marketdata.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), assetIDs...))
	if f.err != nil {
		return nil, f.err
	}
	var out []marketdata.Market
	for _, id := range assetIDs {
		if m, ok := f.markets[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]*domain.Quote
	err    error
}

func newFakeQuoteCache() *fakeQuoteCache {
	return &fakeQuoteCache{quotes: make(map[string]*domain.Quote)}
}

func (c *fakeQuoteCache) SetQuotes(_ context.Context, quotes []*domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for _, q := range quotes {
		cp := *q
		c.quotes[q.Symbol] = &cp
	}
	return nil
}

func (c *fakeQuoteCache) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.quotes[symbol], nil
}

type recordingListener struct {
	mu     sync.Mutex
	quotes []*domain.Quote
}

func (l *recordingListener) OnQuotes(_ context.Context, quotes []*domain.Quote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quotes = append(l.quotes, quotes...)
}

func market(id, name, price string) marketdata.Market {
	return marketdata.Market{
		ID:           id,
		Name:         name,
		CurrentPrice: d(price),
		TotalVolume:  d("1000000"),
		LastUpdated:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestMarket(env *testEnv) (*MarketService, *fakeFetcher, *fakeQuoteCache, *store.QuoteStore) {
	fetcher := &fakeFetcher{markets: map[string]marketdata.Market{
		"bitcoin":  market("bitcoin", "Bitcoin", "65000.5"),
		"ethereum": market("ethereum", "Ethereum", "3200"),
	}}
	cache := newFakeQuoteCache()
	quotes := store.NewQuoteStore()
	svc := NewMarketService(fetcher, quotes, cache, env.symbols, env.engine, []string{"BTC", "ETH"}, nil, nil)
	return svc, fetcher, cache, quotes
}

func TestMarketRefresh_StoresCachesAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	svc, fetcher, cache, quotes := newTestMarket(env)
	listener := &recordingListener{}
	svc.AddListener(listener)

	n, err := svc.Refresh(env.ctx, []string{"btc", "ETH", "NOPE", "BTC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d quotes, want 2", n)
	}
	if len(fetcher.calls) != 1 || len(fetcher.calls[0]) != 2 {
		t.Fatalf("expected one fetch of two asset ids, got %v", fetcher.calls)
	}

	q, err := quotes.Get(env.ctx, "BTC")
	if err != nil {
		t.Fatalf("quote not stored: %v", err)
	}
	assertDecimal(t, "price", q.Price, "65000.5")
	if q.AssetID != "bitcoin" || q.Name != "Bitcoin" || q.Source != "coingecko" {
		t.Errorf("unexpected quote: %+v", q)
	}
	if cache.quotes["ETH"] == nil {
		t.Error("quote cache not written")
	}
	if len(listener.quotes) != 2 {
		t.Errorf("listener saw %d quotes, want 2", len(listener.quotes))
	}
}

func TestMarketRefresh_DefaultsToWatchedSymbols(t *testing.T) {
	env := newTestEnv(t)
	svc, fetcher, _, _ := newTestMarket(env)
	svc.Track("SOL")

	if _, err := svc.Refresh(env.ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fetcher.calls[0]
	want := []string{"bitcoin", "ethereum", "solana"}
	if len(got) != len(want) {
		t.Fatalf("fetched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fetched %v, want %v", got, want)
		}
	}
}

func TestMarketRefresh_UpstreamError(t *testing.T) {
	env := newTestEnv(t)
	svc, fetcher, _, _ := newTestMarket(env)
	fetcher.err = errors.New("boom")

	_, err := svc.Refresh(env.ctx, []string{"BTC"})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestMarketRefresh_CacheFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	svc, _, cache, quotes := newTestMarket(env)
	cache.err = errors.New("redis down")

	n, err := svc.Refresh(env.ctx, []string{"BTC"})
	if err != nil || n != 1 {
		t.Fatalf("refresh should succeed without the cache: n=%d err=%v", n, err)
	}
	if _, err := quotes.Get(env.ctx, "BTC"); err != nil {
		t.Fatalf("quote not stored: %v", err)
	}

	// Reads fall back to the table.
	q, err := svc.Get(env.ctx, "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "price", q.Price, "65000.5")
}

func TestMarketGet(t *testing.T) {
	env := newTestEnv(t)
	svc, _, cache, quotes := newTestMarket(env)

	if _, err := svc.Get(env.ctx, "BTC"); !errors.Is(err, domain.ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound, got %v", err)
	}
	var ve *domain.ValidationError
	if _, err := svc.Get(env.ctx, "not a symbol"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// Table hit backfills the cache.
	quotes.Upsert(env.ctx, []*domain.Quote{{Symbol: "ETH", Price: d("3000")}})
	if _, err := svc.Get(env.ctx, "eth"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.quotes["ETH"] == nil {
		t.Error("table hit should backfill the cache")
	}

	// Cache wins over the table.
	cache.quotes["ETH"] = &domain.Quote{Symbol: "ETH", Price: d("3100")}
	price, ok := svc.LatestPrice(env.ctx, "ETH")
	if !ok {
		t.Fatal("expected a price")
	}
	assertDecimal(t, "price", price, "3100")

	if _, ok := svc.LatestPrice(env.ctx, "SOL"); ok {
		t.Error("expected no price for SOL")
	}
}

func TestWatchedSymbols_IncludesBookSymbols(t *testing.T) {
	env := newTestEnv(t)
	svc, _, _, _ := newTestMarket(env)
	a := env.createAccount(t, "alice", "Main")
	placeLimit(t, env, "alice", a.AccountID, domain.SideBuy, "DOGE", "10", "0.1")
	svc.Track("sol")

	got := svc.WatchedSymbols()
	want := []string{"BTC", "DOGE", "ETH", "SOL"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRegisterSymbol(t *testing.T) {
	env := newTestEnv(t)
	svc, _, _, _ := newTestMarket(env)

	sym, err := svc.RegisterSymbol(" pepe ", "Pepe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sym != "PEPE" {
		t.Errorf("got %q, want PEPE", sym)
	}
	if id, ok := env.symbols.AssetID("PEPE"); !ok || id != "pepe" {
		t.Errorf("asset id = %q, %v", id, ok)
	}

	if _, err := svc.RegisterSymbol("PE-PE", "pepe"); err == nil {
		t.Error("expected validation error for bad symbol")
	}
	if _, err := svc.RegisterSymbol("PEPE", ""); err == nil {
		t.Error("expected validation error for empty asset id")
	}
}

func TestMarketBook(t *testing.T) {
	env := newTestEnv(t)
	svc, _, _, _ := newTestMarket(env)
	a := env.createAccount(t, "alice", "Main")
	placeLimit(t, env, "alice", a.AccountID, domain.SideBuy, "BTC", "0.01", "60000")
	placeLimit(t, env, "alice", a.AccountID, domain.SideBuy, "BTC", "0.02", "60000")

	buys, sells, err := svc.Book("btc", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buys) != 1 || len(sells) != 0 {
		t.Fatalf("got %d buy and %d sell levels", len(buys), len(sells))
	}
	assertDecimal(t, "level quantity", buys[0].TotalQuantity, "0.03")
	if buys[0].OrderCount != 2 {
		t.Errorf("order count = %d, want 2", buys[0].OrderCount)
	}

	if _, _, err := svc.Book("BTC", 0); err == nil {
		t.Error("expected validation error for depth 0")
	}
}

func TestMarketRefresh_TriggersLimitFill(t *testing.T) {
	env := newTestEnv(t)
	svc, fetcher, _, _ := newTestMarket(env)
	svc.AddListener(env.engine)
	env.trading.prices = svc

	a := env.createAccount(t, "alice", "Main")
	o := placeLimit(t, env, "alice", a.AccountID, domain.SideBuy, "ETH", "1", "3100")

	if _, err := svc.Refresh(env.ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := getOrder(t, env, o.OrderID); got.Status != domain.OrderStatusOpen {
		t.Fatalf("order filled above its limit: %s", got.Status)
	}

	fetcher.mu.Lock()
	fetcher.markets["ethereum"] = market("ethereum", "Ethereum", "3050")
	fetcher.mu.Unlock()
	if _, err := svc.Refresh(env.ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := getOrder(t, env, o.OrderID)
	if got.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", got.Status)
	}
	acct := env.getAccount(t, a.AccountID)
	// 10000 - 3050 - 3.05
	assertDecimal(t, "cash_balance", acct.CashBalance, "6946.95")
}
