//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

func setupPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "papertrader",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	url := fmt.Sprintf("postgres://postgres:postgres@%s:%s/papertrader?sslmode=disable", host, port.Port())
	pool, err := OpenPool(ctx, DefaultDBConfig(url))
	if err != nil {
		t.Fatalf("OpenPool() error: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := NewMigrator(pool, nil).ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll() error: %v", err)
	}
	return pool
}

func TestPostgres_Repositories(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(ctx, t)

	t.Run("migrations are idempotent", func(t *testing.T) {
		if err := NewMigrator(pool, nil).ApplyAll(ctx); err != nil {
			t.Fatalf("second ApplyAll() error: %v", err)
		}
	})

	accounts := NewAccountRepository(pool, nil)
	trades := NewTradeRepository(pool)
	orders := NewOrderRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := domain.NewAccount("acc-1", "user-1", "Main", decimal.NewFromInt(10000), now)
	a.IsDefault = true
	if err := accounts.Create(ctx, a); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := accounts.Create(ctx, domain.NewAccount("acc-2", "user-1", "Alt", decimal.NewFromInt(500), now.Add(time.Second))); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	t.Run("mutate commits trade, order and position", func(t *testing.T) {
		updated, err := accounts.Mutate(ctx, "acc-1", func(a *domain.Account, tx store.Tx) error {
			if err := a.ApplyBuy("BTC", decimal.RequireFromString("0.5"), decimal.NewFromInt(1000), decimal.RequireFromString("0.5")); err != nil {
				return err
			}
			tx.InsertTrade(&domain.Trade{
				TradeID: "trade-1", AccountID: "acc-1", UserID: "user-1", Symbol: "BTC",
				Side: domain.SideBuy, OrderType: domain.OrderTypeMarket,
				Quantity: decimal.RequireFromString("0.5"), Price: decimal.NewFromInt(1000),
				Total: decimal.NewFromInt(500), Fee: decimal.RequireFromString("0.5"), ExecutedAt: now,
			})
			tx.SaveOrder(&domain.Order{
				OrderID: "order-1", AccountID: "acc-1", UserID: "user-1", Symbol: "ETH",
				Side: domain.SideBuy, LimitPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
				Reserved: decimal.NewFromInt(100), Status: domain.OrderStatusOpen,
				ExpiresAt: now.Add(time.Hour), CreatedAt: now,
			})
			return a.ReserveCash(decimal.NewFromInt(100))
		})
		if err != nil {
			t.Fatalf("Mutate() error: %v", err)
		}
		if !updated.CashBalance.Equal(decimal.RequireFromString("9499.5")) {
			t.Fatalf("CashBalance = %s, want 9499.5", updated.CashBalance)
		}

		got, err := accounts.Get(ctx, "acc-1")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !got.ReservedCash.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("ReservedCash = %s, want 100", got.ReservedCash)
		}
		if p := got.Positions["BTC"]; p == nil || !p.Quantity.Equal(decimal.RequireFromString("0.5")) {
			t.Fatalf("BTC position = %+v, want quantity 0.5", p)
		}

		list, total, err := trades.ListByAccount(ctx, "acc-1", 1, 10)
		if err != nil || total != 1 || list[0].TradeID != "trade-1" {
			t.Fatalf("ListByAccount() = %v, %d, %v", list, total, err)
		}

		open, err := orders.ListOpen(ctx)
		if err != nil || len(open) != 1 || open[0].OrderID != "order-1" {
			t.Fatalf("ListOpen() = %v, %v", open, err)
		}
	})

	t.Run("mutate rolls back on error", func(t *testing.T) {
		_, err := accounts.Mutate(ctx, "acc-1", func(a *domain.Account, tx store.Tx) error {
			a.Reset(now)
			tx.ClearHistory()
			return domain.ErrInsufficientBalance
		})
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("Mutate() error = %v, want ErrInsufficientBalance", err)
		}
		if _, total, _ := trades.ListByAccount(ctx, "acc-1", 1, 10); total != 1 {
			t.Fatalf("expected trade to survive rollback, got %d", total)
		}
	})

	t.Run("set default", func(t *testing.T) {
		if err := accounts.SetDefault(ctx, "user-1", "acc-2"); err != nil {
			t.Fatalf("SetDefault() error: %v", err)
		}
		list, _ := accounts.ListByUser(ctx, "user-1")
		if len(list) != 2 || list[0].IsDefault || !list[1].IsDefault {
			t.Fatalf("unexpected defaults: %+v", list)
		}
		if err := accounts.SetDefault(ctx, "user-2", "acc-1"); !errors.Is(err, domain.ErrAccountNotFound) {
			t.Fatalf("SetDefault(other user) error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("webhook upsert keeps id", func(t *testing.T) {
		webhooks := NewWebhookRepository(pool)
		w := &domain.Webhook{WebhookID: "wh-1", UserID: "user-1", Event: domain.EventTradeExecuted, URL: "https://a.example", CreatedAt: now, UpdatedAt: now}
		if _, created, err := webhooks.Upsert(ctx, w); err != nil || !created {
			t.Fatalf("Upsert() = %v, %v; want created", created, err)
		}
		w2 := *w
		w2.WebhookID = "wh-2"
		w2.URL = "https://b.example"
		got, created, err := webhooks.Upsert(ctx, &w2)
		if err != nil || created || got.WebhookID != "wh-1" || got.URL != "https://b.example" {
			t.Fatalf("second Upsert() = %+v, %v, %v", got, created, err)
		}
	})

	t.Run("quotes and settings", func(t *testing.T) {
		quotes := NewQuoteRepository(pool)
		if err := quotes.Upsert(ctx, []*domain.Quote{{Symbol: "BTC", AssetID: "bitcoin", Name: "Bitcoin", Price: decimal.NewFromInt(60000), Source: "coingecko", UpdatedAt: now}}); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
		q, err := quotes.Get(ctx, "BTC")
		if err != nil || !q.Price.Equal(decimal.NewFromInt(60000)) {
			t.Fatalf("Get() = %+v, %v", q, err)
		}

		settings := NewSettingsRepository(pool)
		if _, err := settings.Get(ctx, "user-1"); !errors.Is(err, domain.ErrSettingsNotFound) {
			t.Fatalf("Get() error = %v, want ErrSettingsNotFound", err)
		}
		s := &domain.Settings{UserID: "user-1", AIProvider: "openai", RefreshIntervalSeconds: 5, NotificationsEnabled: true, Watchlist: []string{"BTC", "ETH"}, UpdatedAt: now}
		if err := settings.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
		got, err := settings.Get(ctx, "user-1")
		if err != nil || len(got.Watchlist) != 2 {
			t.Fatalf("Get() = %+v, %v", got, err)
		}
	})

	t.Run("notifications", func(t *testing.T) {
		notes := NewNotificationRepository(pool)
		for i := 0; i < 3; i++ {
			if err := notes.Create(ctx, &domain.Notification{ID: fmt.Sprintf("n-%d", i), UserID: "user-1", Type: "trade_executed", Title: "t", Message: "m", CreatedAt: now.Add(time.Duration(i) * time.Second)}); err != nil {
				t.Fatalf("Create() error: %v", err)
			}
		}
		if err := notes.MarkRead(ctx, "user-1", "n-2", now); err != nil {
			t.Fatalf("MarkRead() error: %v", err)
		}
		unread, _ := notes.ListByUser(ctx, "user-1", true, 10)
		if len(unread) != 2 || unread[0].ID != "n-1" {
			t.Fatalf("ListByUser(unread) = %+v", unread)
		}
		if n, _ := notes.MarkAllRead(ctx, "user-1", now); n != 2 {
			t.Fatalf("MarkAllRead() = %d, want 2", n)
		}
	})

	t.Run("delete cascades", func(t *testing.T) {
		if err := accounts.Delete(ctx, "acc-1"); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if _, total, _ := trades.ListByAccount(ctx, "acc-1", 1, 10); total != 0 {
			t.Fatalf("expected trades removed, got %d", total)
		}
		if _, err := orders.Get(ctx, "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected order removed, got %v", err)
		}
	})
}
