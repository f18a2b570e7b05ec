package service

import (
	"context"
	"fmt"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/sentiment"
)

// MaxSentimentSymbols bounds one sentiment request.
const MaxSentimentSymbols = 20

// SentimentService serves simulated social sentiment readings.
type SentimentService struct {
	generator *sentiment.Generator
	settings  *SettingsService
}

// NewSentimentService creates a new SentimentService.
func NewSentimentService(generator *sentiment.Generator, settings *SettingsService) *SentimentService {
	return &SentimentService{generator: generator, settings: settings}
}

// Snapshot returns one record per symbol and platform. Without symbols it
// samples the user's watchlist.
func (s *SentimentService) Snapshot(ctx context.Context, userID string, symbols []string) ([]sentiment.Record, error) {
	if len(symbols) == 0 {
		st, err := s.settings.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		symbols = st.Watchlist
	}
	if len(symbols) > MaxSentimentSymbols {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("at most %d symbols per request", MaxSentimentSymbols),
		}
	}

	seen := make(map[string]bool, len(symbols))
	normalized := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym := domain.NormalizeSymbol(raw)
		if !domain.ValidSymbol(sym) {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid symbol: %q", raw)}
		}
		if !seen[sym] {
			seen[sym] = true
			normalized = append(normalized, sym)
		}
	}
	return s.generator.Generate(normalized), nil
}
