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

var _ store.QuoteRepository = (*QuoteRepository)(nil)

// QuoteRepository persists market_data_cache.
type QuoteRepository struct {
	pool *pgxpool.Pool
}

// NewQuoteRepository creates a QuoteRepository.
func NewQuoteRepository(pool *pgxpool.Pool) *QuoteRepository {
	return &QuoteRepository{pool: pool}
}

const quoteColumns = `symbol, asset_id, name, price, change_24h, change_percent_24h, volume_24h, market_cap, high_24h, low_24h, source, updated_at`

// Upsert writes all quotes in one batch.
func (r *QuoteRepository) Upsert(ctx context.Context, quotes []*domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(`
			INSERT INTO market_data_cache (`+quoteColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (symbol) DO UPDATE SET
				asset_id           = EXCLUDED.asset_id,
				name               = EXCLUDED.name,
				price              = EXCLUDED.price,
				change_24h         = EXCLUDED.change_24h,
				change_percent_24h = EXCLUDED.change_percent_24h,
				volume_24h         = EXCLUDED.volume_24h,
				market_cap         = EXCLUDED.market_cap,
				high_24h           = EXCLUDED.high_24h,
				low_24h            = EXCLUDED.low_24h,
				source             = EXCLUDED.source,
				updated_at         = EXCLUDED.updated_at`,
			q.Symbol, q.AssetID, q.Name, q.Price, q.Change24h, q.ChangePercent24h, q.Volume24h,
			q.MarketCap, q.High24h, q.Low24h, q.Source, q.UpdatedAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range quotes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert quote: %w", err)
		}
	}
	return nil
}

func scanQuote(row pgx.CollectableRow) (*domain.Quote, error) {
	q := &domain.Quote{}
	err := row.Scan(&q.Symbol, &q.AssetID, &q.Name, &q.Price, &q.Change24h, &q.ChangePercent24h,
		&q.Volume24h, &q.MarketCap, &q.High24h, &q.Low24h, &q.Source, &q.UpdatedAt)
	return q, err
}

func (r *QuoteRepository) Get(ctx context.Context, symbol string) (*domain.Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+quoteColumns+` FROM market_data_cache WHERE symbol = $1`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote: %w", err)
	}
	q, err := pgx.CollectExactlyOneRow(rows, scanQuote)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQuoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan quote: %w", err)
	}
	return q, nil
}

func (r *QuoteRepository) List(ctx context.Context) ([]*domain.Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+quoteColumns+` FROM market_data_cache ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	quotes, err := pgx.CollectRows(rows, scanQuote)
	if err != nil {
		return nil, fmt.Errorf("failed to scan quotes: %w", err)
	}
	return quotes, nil
}
