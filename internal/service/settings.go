package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/llm"
	"github.com/efreitasn/papertrader/internal/store"
)

// DefaultRefreshIntervalSeconds is the dashboard polling interval for users
// who never saved settings.
const DefaultRefreshIntervalSeconds = 5

// ProviderCatalog resolves AI provider names.
type ProviderCatalog interface {
	Provider(name string) (llm.ProviderConfig, bool)
}

// UpdateSettingsRequest is a partial update; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	UserID                 string
	DefaultAccountID       *string
	AIProvider             *string
	AIModel                *string
	RefreshIntervalSeconds *int
	NotificationsEnabled   *bool
	Watchlist              *[]string
}

// SettingsService reads and updates user preferences.
type SettingsService struct {
	store           store.SettingsRepository
	accounts        store.AccountRepository
	providers       ProviderCatalog
	defaultProvider string
	defaultSymbols  []string
	logger          *slog.Logger
	now             func() time.Time
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(
	settings store.SettingsRepository,
	accounts store.AccountRepository,
	providers ProviderCatalog,
	defaultProvider string,
	defaultSymbols []string,
	logger *slog.Logger,
) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{
		store:           settings,
		accounts:        accounts,
		providers:       providers,
		defaultProvider: defaultProvider,
		defaultSymbols:  defaultSymbols,
		logger:          logger.With("component", "settings"),
		now:             time.Now,
	}
}

// Defaults returns the settings a user starts with.
func (s *SettingsService) Defaults(userID string) *domain.Settings {
	return &domain.Settings{
		UserID:                 userID,
		AIProvider:             s.defaultProvider,
		RefreshIntervalSeconds: DefaultRefreshIntervalSeconds,
		NotificationsEnabled:   true,
		Watchlist:              append([]string(nil), s.defaultSymbols...),
	}
}

// Get returns the stored settings or the defaults, with DefaultAccountID
// derived from the user's accounts.
func (s *SettingsService) Get(ctx context.Context, userID string) (*domain.Settings, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.fillDefaultAccount(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SettingsService) load(ctx context.Context, userID string) (*domain.Settings, error) {
	st, err := s.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrSettingsNotFound) {
		return s.Defaults(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SettingsService) fillDefaultAccount(ctx context.Context, st *domain.Settings) error {
	accounts, err := s.accounts.ListByUser(ctx, st.UserID)
	if err != nil {
		return err
	}
	st.DefaultAccountID = ""
	for _, a := range accounts {
		if a.IsDefault {
			st.DefaultAccountID = a.AccountID
			break
		}
	}
	return nil
}

// Update validates and applies a partial update.
func (s *SettingsService) Update(ctx context.Context, req UpdateSettingsRequest) (*domain.Settings, error) {
	st, err := s.load(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.AIProvider != nil {
		if _, ok := s.providers.Provider(*req.AIProvider); !ok {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown ai_provider %q", *req.AIProvider)}
		}
		st.AIProvider = *req.AIProvider
	}
	if req.AIModel != nil {
		if len(*req.AIModel) > domain.MaxAIModelLength {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("ai_model must be at most %d characters", domain.MaxAIModelLength)}
		}
		st.AIModel = *req.AIModel
	}
	if req.RefreshIntervalSeconds != nil {
		v := *req.RefreshIntervalSeconds
		if v < domain.MinRefreshIntervalSeconds || v > domain.MaxRefreshIntervalSeconds {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("refresh_interval_seconds must be between %d and %d",
				domain.MinRefreshIntervalSeconds, domain.MaxRefreshIntervalSeconds)}
		}
		st.RefreshIntervalSeconds = v
	}
	if req.NotificationsEnabled != nil {
		st.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.Watchlist != nil {
		list, err := normalizeWatchlist(*req.Watchlist)
		if err != nil {
			return nil, err
		}
		st.Watchlist = list
	}

	// The default account lives on the account rows; validate it before
	// anything is written.
	if req.DefaultAccountID != nil {
		a, err := s.accounts.Get(ctx, *req.DefaultAccountID)
		if err != nil || a.UserID != req.UserID {
			return nil, &domain.ValidationError{Message: "default_account_id must be one of your accounts"}
		}
	}

	st.UpdatedAt = s.now().UTC()
	if err := s.store.Upsert(ctx, st); err != nil {
		return nil, err
	}
	if req.DefaultAccountID != nil {
		if err := s.accounts.SetDefault(ctx, req.UserID, *req.DefaultAccountID); err != nil {
			return nil, err
		}
	}

	if err := s.fillDefaultAccount(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Debug("settings updated", "user_id", req.UserID)
	return st, nil
}

func normalizeWatchlist(symbols []string) ([]string, error) {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym := domain.NormalizeSymbol(raw)
		if !domain.ValidSymbol(sym) {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid watchlist symbol %q", raw)}
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) > domain.MaxWatchlistSize {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("watchlist must have at most %d symbols", domain.MaxWatchlistSize)}
	}
	return out, nil
}
