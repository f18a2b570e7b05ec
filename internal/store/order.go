package store

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/papertrader/internal/domain"
)

// OrderStore is a thread-safe in-memory store for limit orders, with a
// primary index by order_id and a secondary index by account_id.
type OrderStore struct {
	mu            sync.RWMutex
	orders        map[string]*domain.Order
	accountOrders map[string][]string // account_id → order ids, creation order
}

var _ OrderRepository = (*OrderStore)(nil)

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:        make(map[string]*domain.Order),
		accountOrders: make(map[string][]string),
	}
}

func (s *OrderStore) save(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.OrderID]; !exists {
		s.accountOrders[o.AccountID] = append(s.accountOrders[o.AccountID], o.OrderID)
	}
	cp := *o
	s.orders[o.OrderID] = &cp
}

func (s *OrderStore) deleteAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.accountOrders[accountID] {
		delete(s.orders, id)
	}
	delete(s.accountOrders, accountID)
}

// Get retrieves an order by ID. It returns domain.ErrOrderNotFound if the
// order does not exist.
func (s *OrderStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

// ListByAccount returns orders for an account in reverse chronological
// order. If status is non-nil, only orders matching that status are
// included. Pagination is 1-based.
func (s *OrderStore) ListByAccount(_ context.Context, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.accountOrders[accountID]

	filtered := make([]*domain.Order, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		o := s.orders[ids[i]]
		if status != nil && o.Status != *status {
			continue
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)
	start, end := pageBounds(total, page, limit)

	result := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		cp := *o
		result = append(result, &cp)
	}
	return result, total, nil
}

// ListOpen returns every open order, oldest first.
func (s *OrderStore) ListOpen(_ context.Context) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0)
	for _, o := range s.orders {
		if o.IsOpen() {
			cp := *o
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].OrderID < result[j].OrderID
	})
	return result, nil
}
