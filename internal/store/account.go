package store

import (
	"context"
	"sync"

	"github.com/efreitasn/papertrader/internal/domain"
)

type accountEntry struct {
	mu      sync.Mutex
	account *domain.Account
	deleted bool
}

// AccountStore is a thread-safe in-memory store for accounts. Each account
// carries its own mutex so Mutate serializes writers per account while
// other accounts proceed in parallel.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountEntry
	byUser   map[string][]string // user_id → account ids, creation order
	trades   *TradeStore
	orders   *OrderStore
}

var _ AccountRepository = (*AccountStore)(nil)

// NewAccountStore creates an empty AccountStore that commits staged trade
// and order writes to the given stores.
func NewAccountStore(trades *TradeStore, orders *OrderStore) *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*accountEntry),
		byUser:   make(map[string][]string),
		trades:   trades,
		orders:   orders,
	}
}

// Create adds an account to the store.
func (s *AccountStore) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[a.AccountID] = &accountEntry{account: a.Clone()}
	s.byUser[a.UserID] = append(s.byUser[a.UserID], a.AccountID)
	return nil
}

func (s *AccountStore) entry(id string) (*accountEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return e, nil
}

// Get retrieves a copy of an account by ID. It returns
// domain.ErrAccountNotFound if the account does not exist.
func (s *AccountStore) Get(_ context.Context, id string) (*domain.Account, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrAccountNotFound
	}
	return e.account.Clone(), nil
}

// ListByUser returns copies of the user's accounts, oldest first.
func (s *AccountStore) ListByUser(_ context.Context, userID string) ([]*domain.Account, error) {
	s.mu.RLock()
	entries := make([]*accountEntry, 0, len(s.byUser[userID]))
	for _, id := range s.byUser[userID] {
		entries = append(entries, s.accounts[id])
	}
	s.mu.RUnlock()

	result := make([]*domain.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			result = append(result, e.account.Clone())
		}
		e.mu.Unlock()
	}
	return result, nil
}

// SetDefault flags accountID as default and clears the flag on the user's
// other accounts.
func (s *AccountStore) SetDefault(_ context.Context, userID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := false
	for _, id := range s.byUser[userID] {
		if id == accountID {
			owned = true
			break
		}
	}
	if !owned {
		return domain.ErrAccountNotFound
	}
	for _, id := range s.byUser[userID] {
		e := s.accounts[id]
		e.mu.Lock()
		e.account.IsDefault = id == accountID
		e.mu.Unlock()
	}
	return nil
}

// Delete removes an account and its trades and orders. It returns
// domain.ErrAccountNotFound if the account does not exist.
func (s *AccountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.accounts[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrAccountNotFound
	}
	delete(s.accounts, id)
	e.mu.Lock()
	userID := e.account.UserID
	e.mu.Unlock()
	ids := s.byUser[userID]
	for i, aid := range ids {
		if aid == id {
			s.byUser[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byUser[userID]) == 0 {
		delete(s.byUser, userID)
	}
	s.mu.Unlock()

	// Wait for an in-flight Mutate before dropping history.
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()

	s.trades.deleteAccount(id)
	s.orders.deleteAccount(id)
	return nil
}

// memTx buffers writes until the mutation succeeds.
type memTx struct {
	trades []*domain.Trade
	orders []*domain.Order
	clear  bool
}

func (t *memTx) InsertTrade(tr *domain.Trade) { t.trades = append(t.trades, tr) }
func (t *memTx) SaveOrder(o *domain.Order)    { t.orders = append(t.orders, o) }

func (t *memTx) ClearHistory() {
	t.clear = true
	t.trades = nil
	t.orders = nil
}

// Mutate runs fn against a copy of the account while holding the account's
// lock, then swaps in the copy and flushes staged writes.
func (s *AccountStore) Mutate(_ context.Context, id string, fn func(a *domain.Account, tx Tx) error) (*domain.Account, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrAccountNotFound
	}

	working := e.account.Clone()
	tx := &memTx{}
	if err := fn(working, tx); err != nil {
		return nil, err
	}

	e.account = working
	if tx.clear {
		s.trades.deleteAccount(id)
		s.orders.deleteAccount(id)
	}
	for _, o := range tx.orders {
		s.orders.save(o)
	}
	for _, t := range tx.trades {
		s.trades.insert(t)
	}
	return working.Clone(), nil
}
