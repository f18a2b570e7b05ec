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

var _ store.OrderRepository = (*OrderRepository)(nil)

// OrderRepository reads paper_orders. Orders are written through
// AccountRepository.Mutate.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates an OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `order_id, account_id, user_id, symbol, side, limit_price, quantity, reserved, status, trade_id, reject_reason, expires_at, created_at, filled_at, cancelled_at, expired_at`

func queueOrderUpsert(b *pgx.Batch, o *domain.Order) {
	b.Queue(`
		INSERT INTO paper_orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (order_id) DO UPDATE SET
			status        = EXCLUDED.status,
			reserved      = EXCLUDED.reserved,
			trade_id      = EXCLUDED.trade_id,
			reject_reason = EXCLUDED.reject_reason,
			filled_at     = EXCLUDED.filled_at,
			cancelled_at  = EXCLUDED.cancelled_at,
			expired_at    = EXCLUDED.expired_at`,
		o.OrderID, o.AccountID, o.UserID, o.Symbol, string(o.Side), o.LimitPrice, o.Quantity, o.Reserved,
		string(o.Status), o.TradeID, o.RejectReason, o.ExpiresAt, o.CreatedAt, o.FilledAt, o.CancelledAt, o.ExpiredAt)
}

func scanOrder(row pgx.CollectableRow) (*domain.Order, error) {
	o := &domain.Order{}
	var side, status string
	err := row.Scan(&o.OrderID, &o.AccountID, &o.UserID, &o.Symbol, &side, &o.LimitPrice, &o.Quantity,
		&o.Reserved, &status, &o.TradeID, &o.RejectReason, &o.ExpiresAt, &o.CreatedAt,
		&o.FilledAt, &o.CancelledAt, &o.ExpiredAt)
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM paper_orders WHERE order_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) ListByAccount(ctx context.Context, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	var statusFilter *string
	if status != nil {
		s := string(*status)
		statusFilter = &s
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM paper_orders
		WHERE account_id = $1 AND ($2::text IS NULL OR status = $2)`,
		accountID, statusFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM paper_orders
		WHERE account_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, order_id DESC
		LIMIT $3 OFFSET $4`, accountID, statusFilter, limit, offset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, total, nil
}

func (r *OrderRepository) ListOpen(ctx context.Context) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM paper_orders
		WHERE status = 'open'
		ORDER BY created_at, order_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, nil
}
