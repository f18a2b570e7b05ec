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

var _ store.SettingsRepository = (*SettingsRepository)(nil)

// SettingsRepository persists user_settings. The default account lives on
// paper_trading_accounts.is_default and is not duplicated here.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a SettingsRepository.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context, userID string) (*domain.Settings, error) {
	s := &domain.Settings{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT ai_provider, ai_model, refresh_interval_seconds, notifications_enabled, watchlist, updated_at
		FROM user_settings
		WHERE user_id = $1`, userID).
		Scan(&s.AIProvider, &s.AIModel, &s.RefreshIntervalSeconds, &s.NotificationsEnabled, &s.Watchlist, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, s *domain.Settings) error {
	watchlist := s.Watchlist
	if watchlist == nil {
		watchlist = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, ai_provider, ai_model, refresh_interval_seconds, notifications_enabled, watchlist, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			ai_provider              = EXCLUDED.ai_provider,
			ai_model                 = EXCLUDED.ai_model,
			refresh_interval_seconds = EXCLUDED.refresh_interval_seconds,
			notifications_enabled    = EXCLUDED.notifications_enabled,
			watchlist                = EXCLUDED.watchlist,
			updated_at               = EXCLUDED.updated_at`,
		s.UserID, s.AIProvider, s.AIModel, s.RefreshIntervalSeconds, s.NotificationsEnabled, watchlist, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
