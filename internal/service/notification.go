package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/notify"
	"github.com/efreitasn/papertrader/internal/store"
)

// Notification list bounds.
const (
	DefaultNotificationLimit = 50
	MaxNotificationLimit     = 100
)

// NotificationService persists user notifications and publishes them on the
// user's live channel.
type NotificationService struct {
	store    store.NotificationRepository
	settings store.SettingsRepository
	broker   notify.Broker
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotificationService creates a new NotificationService. settings may be
// nil, in which case every user has notifications enabled.
func NewNotificationService(
	notifications store.NotificationRepository,
	settings store.SettingsRepository,
	broker notify.Broker,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		store:    notifications,
		settings: settings,
		broker:   broker,
		logger:   logger.With("component", "notifications"),
		now:      time.Now,
	}
}

// Notify stores a notification and publishes it when the user has
// notifications enabled. Failures are logged, never returned: a notification
// must not fail the operation that raised it.
func (s *NotificationService) Notify(ctx context.Context, userID, accountID, typ, title, message string) {
	n := &domain.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		AccountID: accountID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Error("failed to store notification", "user_id", userID, "type", typ, "error", err)
		return
	}
	if !s.enabled(ctx, userID) || s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, n); err != nil {
		s.logger.Warn("failed to publish notification", "user_id", userID, "id", n.ID, "error", err)
	}
}

func (s *NotificationService) enabled(ctx context.Context, userID string) bool {
	if s.settings == nil {
		return true
	}
	st, err := s.settings.Get(ctx, userID)
	if errors.Is(err, domain.ErrSettingsNotFound) {
		return true
	}
	if err != nil {
		s.logger.Warn("settings lookup failed, publishing anyway", "user_id", userID, "error", err)
		return true
	}
	return st.NotificationsEnabled
}

// List returns the user's notifications, newest first. limit defaults to
// DefaultNotificationLimit.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	if limit == 0 {
		limit = DefaultNotificationLimit
	}
	if limit < 1 || limit > MaxNotificationLimit {
		return nil, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}
	return s.store.ListByUser(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkRead(ctx, userID, id, s.now().UTC())
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID, s.now().UTC())
}

// Delete removes one notification.
func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

// Subscribe opens the user's live notification channel.
func (s *NotificationService) Subscribe(ctx context.Context, userID string) (<-chan *domain.Notification, func(), error) {
	if s.broker == nil {
		return nil, nil, errors.New("no notification broker configured")
	}
	return s.broker.Subscribe(ctx, userID)
}
