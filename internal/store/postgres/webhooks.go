package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

var _ store.WebhookRepository = (*WebhookRepository)(nil)

// WebhookRepository persists account_webhooks, unique per (user_id, event).
type WebhookRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookRepository creates a WebhookRepository.
func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

const webhookColumns = `webhook_id, user_id, event, url, created_at, updated_at`

func scanWebhook(row pgx.CollectableRow) (*domain.Webhook, error) {
	w := &domain.Webhook{}
	err := row.Scan(&w.WebhookID, &w.UserID, &w.Event, &w.URL, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// Upsert keeps the existing webhook_id on conflict. xmax = 0 identifies a
// freshly inserted row.
func (r *WebhookRepository) Upsert(ctx context.Context, w *domain.Webhook) (*domain.Webhook, bool, error) {
	out := &domain.Webhook{}
	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO account_webhooks (`+webhookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, event) DO UPDATE SET
			url        = EXCLUDED.url,
			updated_at = CASE WHEN account_webhooks.url = EXCLUDED.url
			                  THEN account_webhooks.updated_at
			                  ELSE EXCLUDED.updated_at END
		RETURNING `+webhookColumns+`, (xmax = 0)`,
		w.WebhookID, w.UserID, w.Event, w.URL, w.CreatedAt, w.UpdatedAt).
		Scan(&out.WebhookID, &out.UserID, &out.Event, &out.URL, &out.CreatedAt, &out.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert webhook: %w", err)
	}
	return out, created, nil
}

func (r *WebhookRepository) Get(ctx context.Context, id string) (*domain.Webhook, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+webhookColumns+` FROM account_webhooks WHERE webhook_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook: %w", err)
	}
	w, err := pgx.CollectExactlyOneRow(rows, scanWebhook)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook: %w", err)
	}
	return w, nil
}

func (r *WebhookRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Webhook, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+webhookColumns+` FROM account_webhooks WHERE user_id = $1 ORDER BY event`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanWebhook)
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhooks: %w", err)
	}
	return list, nil
}

func (r *WebhookRepository) GetByUserEvent(ctx context.Context, userID, event string) (*domain.Webhook, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+webhookColumns+` FROM account_webhooks WHERE user_id = $1 AND event = $2`, userID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook: %w", err)
	}
	w, err := pgx.CollectExactlyOneRow(rows, scanWebhook)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook: %w", err)
	}
	return w, nil
}

func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_webhooks WHERE webhook_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}
