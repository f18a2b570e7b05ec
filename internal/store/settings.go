package store

import (
	"context"
	"sync"

	"github.com/efreitasn/papertrader/internal/domain"
)

// SettingsStore is a thread-safe in-memory store for user settings.
type SettingsStore struct {
	mu       sync.RWMutex
	settings map[string]*domain.Settings
}

var _ SettingsRepository = (*SettingsStore)(nil)

// NewSettingsStore creates an empty SettingsStore.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{
		settings: make(map[string]*domain.Settings),
	}
}

// Get returns a copy of the user's settings.
func (s *SettingsStore) Get(_ context.Context, userID string) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[userID]
	if !ok {
		return nil, domain.ErrSettingsNotFound
	}
	return st.Clone(), nil
}

// Upsert replaces the user's settings.
func (s *SettingsStore) Upsert(_ context.Context, st *domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[st.UserID] = st.Clone()
	return nil
}
