package store

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/efreitasn/papertrader/internal/domain"
)

// tradeLess orders trades newest first, then by trade_id descending, so an
// ascending walk yields reverse chronological history.
func tradeLess(a, b *domain.Trade) bool {
	if !a.ExecutedAt.Equal(b.ExecutedAt) {
		return a.ExecutedAt.After(b.ExecutedAt)
	}
	return a.TradeID > b.TradeID
}

// TradeStore is a thread-safe in-memory store for trades, indexed per
// account in a B-tree.
type TradeStore struct {
	mu        sync.RWMutex
	byAccount map[string]*btree.BTreeG[*domain.Trade]
}

var _ TradeRepository = (*TradeStore)(nil)

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byAccount: make(map[string]*btree.BTreeG[*domain.Trade]),
	}
}

func (s *TradeStore) insert(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.byAccount[t.AccountID]
	if !ok {
		tree = btree.NewG[*domain.Trade](16, tradeLess)
		s.byAccount[t.AccountID] = tree
	}
	cp := *t
	tree.ReplaceOrInsert(&cp)
}

func (s *TradeStore) deleteAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAccount, accountID)
}

// ListByAccount returns one page of the account's trades, newest first,
// and the total trade count.
func (s *TradeStore) ListByAccount(_ context.Context, accountID string, page, limit int) ([]*domain.Trade, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.byAccount[accountID]
	if !ok {
		return []*domain.Trade{}, 0, nil
	}
	total := tree.Len()
	start, end := pageBounds(total, page, limit)

	result := make([]*domain.Trade, 0, end-start)
	i := 0
	tree.Ascend(func(t *domain.Trade) bool {
		if i >= end {
			return false
		}
		if i >= start {
			cp := *t
			result = append(result, &cp)
		}
		i++
		return true
	})
	return result, total, nil
}
