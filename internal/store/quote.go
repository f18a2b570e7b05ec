package store

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/papertrader/internal/domain"
)

// QuoteStore is a thread-safe in-memory market data cache keyed by symbol.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]*domain.Quote
}

var _ QuoteRepository = (*QuoteStore)(nil)

// NewQuoteStore creates an empty QuoteStore.
func NewQuoteStore() *QuoteStore {
	return &QuoteStore{
		quotes: make(map[string]*domain.Quote),
	}
}

// Upsert replaces the cached quote for every symbol in quotes.
func (s *QuoteStore) Upsert(_ context.Context, quotes []*domain.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		cp := *q
		s.quotes[q.Symbol] = &cp
	}
	return nil
}

// Get returns domain.ErrQuoteNotFound when no quote is cached for symbol.
func (s *QuoteStore) Get(_ context.Context, symbol string) (*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	if !ok {
		return nil, domain.ErrQuoteNotFound
	}
	cp := *q
	return &cp, nil
}

// List returns all cached quotes ordered by symbol.
func (s *QuoteStore) List(_ context.Context) ([]*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		cp := *q
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}
