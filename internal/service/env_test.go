package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/llm"
	"github.com/efreitasn/papertrader/internal/notify"
	"github.com/efreitasn/papertrader/internal/store"
)

var testFeeRate = decimal.RequireFromString("0.001")

// stubPrices is a PriceLookup backed by a map.
type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newStubPrices() *stubPrices {
	return &stubPrices{prices: make(map[string]decimal.Decimal)}
}

func (p *stubPrices) set(symbol, price string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = decimal.RequireFromString(price)
}

func (p *stubPrices) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	return price, ok
}

// testEnv bundles the in-memory stores and services used across the
// service tests.
type testEnv struct {
	ctx           context.Context
	accountStore  *store.AccountStore
	orderStore    *store.OrderStore
	tradeStore    *store.TradeStore
	settingsStore *store.SettingsStore
	notifStore    *store.NotificationStore
	webhookStore  *store.WebhookStore
	symbols       *domain.SymbolRegistry
	books         *engine.BookManager
	expiry        *engine.ExpiryManager
	engine        *engine.Engine
	broker        *notify.MemoryBroker
	prices        *stubPrices

	notifications *NotificationService
	webhooks      *WebhookService
	settings      *SettingsService
	accounts      *AccountService
	trading       *TradingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ctx:           context.Background(),
		orderStore:    store.NewOrderStore(),
		tradeStore:    store.NewTradeStore(),
		settingsStore: store.NewSettingsStore(),
		notifStore:    store.NewNotificationStore(),
		webhookStore:  store.NewWebhookStore(),
		symbols:       domain.NewDefaultSymbolRegistry(),
		books:         engine.NewBookManager(),
		broker:        notify.NewMemoryBroker(),
		prices:        newStubPrices(),
	}
	env.accountStore = store.NewAccountStore(env.tradeStore, env.orderStore)
	env.expiry = engine.NewExpiryManager(time.Second, env.books, nil)
	env.engine = engine.New(env.books, env.expiry, nil)

	env.notifications = NewNotificationService(env.notifStore, env.settingsStore, env.broker, nil)
	env.webhooks = NewWebhookService(env.webhookStore, 5*time.Second, nil, nil)
	env.settings = NewSettingsService(env.settingsStore, env.accountStore,
		llm.NewClient(llm.Config{}), "openai", []string{"BTC", "ETH"}, nil)
	env.accounts = NewAccountService(env.accountStore, env.engine, env.prices,
		env.notifications, env.webhooks, AccountConfig{
			DefaultInitialBalance: decimal.NewFromInt(10000),
			MaxAccountsPerUser:    3,
		}, nil)
	env.trading = NewTradingService(env.accounts, env.accountStore, env.orderStore, env.tradeStore,
		env.engine, env.prices, nil, env.symbols, env.notifications, env.webhooks, nil,
		TradingConfig{FeeRate: testFeeRate, OrderTTL: time.Hour}, nil)
	env.engine.SetFiller(env.trading)
	env.expiry.SetExpirer(env.trading)
	t.Cleanup(env.webhooks.Wait)
	return env
}

func (env *testEnv) createAccount(t *testing.T, userID, name string) *domain.Account {
	t.Helper()
	a, err := env.accounts.Create(env.ctx, CreateAccountRequest{UserID: userID, Name: name})
	if err != nil {
		t.Fatalf("failed to create account %s: %v", name, err)
	}
	return a
}

func (env *testEnv) getAccount(t *testing.T, id string) *domain.Account {
	t.Helper()
	a, err := env.accountStore.Get(env.ctx, id)
	if err != nil {
		t.Fatalf("failed to get account %s: %v", id, err)
	}
	return a
}

func (env *testEnv) marketBuy(t *testing.T, userID, accountID, symbol, qty string) *domain.Trade {
	t.Helper()
	res, err := env.trading.ExecuteTrade(env.ctx, ExecuteTradeRequest{
		UserID:    userID,
		AccountID: accountID,
		Symbol:    symbol,
		Side:      domain.SideBuy,
		Type:      domain.OrderTypeMarket,
		Quantity:  d(qty),
	})
	if err != nil {
		t.Fatalf("market buy failed: %v", err)
	}
	return res.Trade
}

func (env *testEnv) quote(symbol, price string) {
	env.prices.set(symbol, price)
	env.engine.OnQuotes(env.ctx, []*domain.Quote{{Symbol: symbol, Price: d(price)}})
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func assertDecimal(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s = %s, want %s", field, got.String(), want)
	}
}
