// Package store defines the repositories the services persist through and
// provides thread-safe in-memory implementations of them. The postgres
// subpackage implements the same interfaces on top of pgx.
package store

import (
	"context"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Tx stages writes that commit together with an account mutation.
type Tx interface {
	InsertTrade(t *domain.Trade)
	SaveOrder(o *domain.Order)
	// ClearHistory deletes every trade and order of the mutated account.
	ClearHistory()
}

// AccountRepository persists paper_trading_accounts and their positions.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, id string) (*domain.Account, error)
	// ListByUser returns the user's accounts oldest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Account, error)
	// SetDefault marks accountID as the user's only default account.
	SetDefault(ctx context.Context, userID, accountID string) error
	// Delete removes the account together with its trades and orders.
	Delete(ctx context.Context, id string) error
	// Mutate loads the account under an exclusive lock and passes a copy to
	// fn. The copy and the writes staged on tx are persisted only when fn
	// returns nil.
	Mutate(ctx context.Context, id string, fn func(a *domain.Account, tx Tx) error) (*domain.Account, error)
}

// TradeRepository reads paper_trades.
type TradeRepository interface {
	// ListByAccount returns one page of trades, newest first, and the total
	// number of trades for the account. Pages are 1-based.
	ListByAccount(ctx context.Context, accountID string, page, limit int) ([]*domain.Trade, int, error)
}

// OrderRepository reads paper_orders.
type OrderRepository interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	// ListByAccount returns one page of orders, newest first, optionally
	// filtered by status, and the total number of matches.
	ListByAccount(ctx context.Context, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error)
	// ListOpen returns every open order across all accounts.
	ListOpen(ctx context.Context) ([]*domain.Order, error)
}

// SettingsRepository persists user_settings.
type SettingsRepository interface {
	// Get returns domain.ErrSettingsNotFound when the user never saved settings.
	Get(ctx context.Context, userID string) (*domain.Settings, error)
	Upsert(ctx context.Context, s *domain.Settings) error
}

// QuoteRepository persists market_data_cache.
type QuoteRepository interface {
	Upsert(ctx context.Context, quotes []*domain.Quote) error
	Get(ctx context.Context, symbol string) (*domain.Quote, error)
	// List returns every cached quote ordered by symbol.
	List(ctx context.Context) ([]*domain.Quote, error)
}

// NotificationRepository persists account_notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// ListByUser returns up to limit notifications, newest first.
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string, now time.Time) error
	// MarkAllRead returns how many notifications changed state.
	MarkAllRead(ctx context.Context, userID string, now time.Time) (int, error)
	Delete(ctx context.Context, userID, id string) error
}

// WebhookRepository persists account_webhooks.
type WebhookRepository interface {
	// Upsert inserts or updates the subscription keyed by (user, event) and
	// returns the stored webhook and whether it was newly created.
	Upsert(ctx context.Context, w *domain.Webhook) (*domain.Webhook, bool, error)
	Get(ctx context.Context, id string) (*domain.Webhook, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Webhook, error)
	// GetByUserEvent returns nil, nil when the user has no subscription for event.
	GetByUserEvent(ctx context.Context, userID, event string) (*domain.Webhook, error)
	Delete(ctx context.Context, id string) error
}

// pageBounds converts a 1-based page into slice bounds over total items.
func pageBounds(total, page, limit int) (start, end int) {
	start = (page - 1) * limit
	if start >= total {
		return total, total
	}
	end = start + limit
	if end > total {
		end = total
	}
	return start, end
}
