package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

var _ store.NotificationRepository = (*NotificationRepository)(nil)

// NotificationRepository persists account_notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO account_notifications (id, user_id, account_id, type, title, message, read, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.UserID, n.AccountID, n.Type, n.Title, n.Message, n.Read, n.CreatedAt, n.ReadAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, account_id, type, title, message, read, created_at, read_at
		FROM account_notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Notification, error) {
		n := &domain.Notification{}
		err := row.Scan(&n.ID, &n.UserID, &n.AccountID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt, &n.ReadAt)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications: %w", err)
	}
	return list, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE account_notifications
		SET read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE user_id = $1 AND id = $2`, userID, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE account_notifications
		SET read = TRUE, read_at = $2
		WHERE user_id = $1 AND NOT read`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_notifications WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
