package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

var _ store.TradeRepository = (*TradeRepository)(nil)

// TradeRepository reads paper_trades. Trades are written through
// AccountRepository.Mutate.
type TradeRepository struct {
	pool *pgxpool.Pool
}

// NewTradeRepository creates a TradeRepository.
func NewTradeRepository(pool *pgxpool.Pool) *TradeRepository {
	return &TradeRepository{pool: pool}
}

const tradeColumns = `trade_id, account_id, user_id, order_id, symbol, side, order_type, quantity, price, total, fee, realized_pnl, executed_at`

func queueTradeInsert(b *pgx.Batch, t *domain.Trade) {
	b.Queue(`
		INSERT INTO paper_trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.TradeID, t.AccountID, t.UserID, t.OrderID, t.Symbol, string(t.Side), string(t.OrderType),
		t.Quantity, t.Price, t.Total, t.Fee, t.RealizedPnL, t.ExecutedAt)
}

func scanTrade(row pgx.CollectableRow) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, orderType string
	err := row.Scan(&t.TradeID, &t.AccountID, &t.UserID, &t.OrderID, &t.Symbol, &side, &orderType,
		&t.Quantity, &t.Price, &t.Total, &t.Fee, &t.RealizedPnL, &t.ExecutedAt)
	t.Side = domain.Side(side)
	t.OrderType = domain.OrderType(orderType)
	return t, err
}

func (r *TradeRepository) ListByAccount(ctx context.Context, accountID string, page, limit int) ([]*domain.Trade, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM paper_trades WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM paper_trades
		WHERE account_id = $1
		ORDER BY executed_at DESC, trade_id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list trades: %w", err)
	}
	trades, err := pgx.CollectRows(rows, scanTrade)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan trades: %w", err)
	}
	return trades, total, nil
}
