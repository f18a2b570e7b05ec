package store

import (
	"context"
	"sync"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

// NotificationStore is a thread-safe in-memory store for notifications,
// kept per user in insertion order.
type NotificationStore struct {
	mu     sync.RWMutex
	byUser map[string][]*domain.Notification
}

var _ NotificationRepository = (*NotificationStore)(nil)

// NewNotificationStore creates an empty NotificationStore.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		byUser: make(map[string][]*domain.Notification),
	}
}

// Create appends a notification to the user's list.
func (s *NotificationStore) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.byUser[n.UserID] = append(s.byUser[n.UserID], &cp)
	return nil
}

// ListByUser returns up to limit notifications, newest first.
func (s *NotificationStore) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byUser[userID]
	result := make([]*domain.Notification, 0)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		if unreadOnly && all[i].Read {
			continue
		}
		cp := *all[i]
		result = append(result, &cp)
	}
	return result, nil
}

// MarkRead marks one of the user's notifications as read. Marking an
// already read notification is a no-op.
func (s *NotificationStore) MarkRead(_ context.Context, userID, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.byUser[userID] {
		if n.ID == id {
			if !n.Read {
				n.Read = true
				n.ReadAt = &now
			}
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationStore) MarkAllRead(_ context.Context, userID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.byUser[userID] {
		if !n.Read {
			n.Read = true
			n.ReadAt = &now
			count++
		}
	}
	return count, nil
}

// Delete removes one of the user's notifications.
func (s *NotificationStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.byUser[userID]
	for i, n := range all {
		if n.ID == id {
			s.byUser[userID] = append(all[:i:i], all[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}
