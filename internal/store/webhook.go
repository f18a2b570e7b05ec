package store

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/papertrader/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for webhooks.
// Primary index: webhook_id → webhook.
// Secondary index: user_id → event → webhook.
type WebhookStore struct {
	mu       sync.RWMutex
	webhooks map[string]*domain.Webhook            // webhook_id → webhook
	byUser   map[string]map[string]*domain.Webhook // user_id → event → webhook
}

var _ WebhookRepository = (*WebhookStore)(nil)

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks: make(map[string]*domain.Webhook),
		byUser:   make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert inserts or updates a subscription keyed by (user_id, event). An
// existing subscription keeps its webhook_id; only URL and UpdatedAt change,
// and only when the URL differs.
func (s *WebhookStore) Upsert(_ context.Context, w *domain.Webhook) (*domain.Webhook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if events, ok := s.byUser[w.UserID]; ok {
		if existing, ok := events[w.Event]; ok {
			if existing.URL != w.URL {
				existing.URL = w.URL
				existing.UpdatedAt = w.UpdatedAt
			}
			cp := *existing
			return &cp, false, nil
		}
	}

	stored := *w
	s.webhooks[w.WebhookID] = &stored
	if s.byUser[w.UserID] == nil {
		s.byUser[w.UserID] = make(map[string]*domain.Webhook)
	}
	s.byUser[w.UserID][w.Event] = &stored

	cp := stored
	return &cp, true, nil
}

// Get retrieves a webhook by ID. It returns domain.ErrWebhookNotFound if
// the webhook does not exist.
func (s *WebhookStore) Get(_ context.Context, id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	cp := *w
	return &cp, nil
}

// ListByUser returns all webhooks for a user ordered by event.
func (s *WebhookStore) ListByUser(_ context.Context, userID string) ([]*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byUser[userID]
	result := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Event < result[j].Event })
	return result, nil
}

// GetByUserEvent returns the webhook for a user+event pair, or nil if no
// subscription exists.
func (s *WebhookStore) GetByUserEvent(_ context.Context, userID, event string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w := s.byUser[userID][event]
	if w == nil {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// Delete removes a webhook by ID from both indexes. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.webhooks, id)

	if events, ok := s.byUser[w.UserID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byUser, w.UserID)
		}
	}
	return nil
}
