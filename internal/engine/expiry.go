package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Expirer settles an order whose expiry has passed.
type Expirer interface {
	ExpireOrder(ctx context.Context, order *domain.Order)
}

// ExpiryManager tracks resting limit orders sorted by expires_at and
// periodically expires orders whose expiration time has passed.
type ExpiryManager struct {
	interval     time.Duration
	books        *BookManager
	expirer      Expirer
	logger       *slog.Logger
	activeOrders []*domain.Order // sorted by expires_at ASC
	mu           sync.Mutex      // protects activeOrders and expirer
}

// NewExpiryManager creates an ExpiryManager. The expirer may be set later
// with SetExpirer.
func NewExpiryManager(interval time.Duration, books *BookManager, logger *slog.Logger) *ExpiryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryManager{
		interval:     interval,
		books:        books,
		logger:       logger.With("component", "expiry-manager"),
		activeOrders: make([]*domain.Order, 0),
	}
}

// SetExpirer sets the callback for expired orders.
func (e *ExpiryManager) SetExpirer(x Expirer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expirer = x
}

// Add inserts an order into the sorted activeOrders slice, maintaining
// expires_at ASC order.
func (e *ExpiryManager) Add(order *domain.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()

	expiresAt := order.ExpiresAt
	idx := sort.Search(len(e.activeOrders), func(i int) bool {
		return e.activeOrders[i].ExpiresAt.After(expiresAt)
	})
	e.activeOrders = append(e.activeOrders, nil)
	copy(e.activeOrders[idx+1:], e.activeOrders[idx:])
	e.activeOrders[idx] = order
}

// Remove deletes an order from the activeOrders slice by order ID.
func (e *ExpiryManager) Remove(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, o := range e.activeOrders {
		if o.OrderID == orderID {
			e.activeOrders = append(e.activeOrders[:i], e.activeOrders[i+1:]...)
			return
		}
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and expires orders. It returns when ctx is cancelled.
func (e *ExpiryManager) Start(ctx context.Context) {
	go e.Run(ctx)
}

// Run ticks until ctx is cancelled.
func (e *ExpiryManager) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			e.tick(ctx, t)
		}
	}
}

// tick pops every order with expires_at <= now from the front of the
// slice, pulls it off its book and hands it to the expirer.
func (e *ExpiryManager) tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	cutoff := 0
	for cutoff < len(e.activeOrders) && !e.activeOrders[cutoff].ExpiresAt.After(now) {
		cutoff++
	}
	toExpire := append([]*domain.Order(nil), e.activeOrders[:cutoff]...)
	e.activeOrders = e.activeOrders[cutoff:]
	expirer := e.expirer
	e.mu.Unlock()

	for _, order := range toExpire {
		if book := e.books.Get(order.Symbol); book != nil {
			book.Remove(order.OrderID)
		}
		if expirer != nil {
			expirer.ExpireOrder(ctx, order)
		}
	}
	if len(toExpire) > 0 {
		e.logger.Debug("expired orders", "count", len(toExpire))
	}
}

// ActiveOrderCount returns the number of orders currently tracked for
// expiration.
func (e *ExpiryManager) ActiveOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.activeOrders)
}
