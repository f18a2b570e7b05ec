package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

var _ store.AccountRepository = (*AccountRepository)(nil)

// AccountRepository stores accounts in paper_trading_accounts with their
// positions in account_positions.
type AccountRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAccountRepository creates an AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool, logger *slog.Logger) *AccountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountRepository{pool: pool, logger: logger.With("component", "account_repository")}
}

const accountColumns = `account_id, user_id, name, initial_balance, cash_balance, reserved_cash, is_default, created_at, updated_at`

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO paper_trading_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.AccountID, a.UserID, a.Name, a.InitialBalance, a.CashBalance, a.ReservedCash, a.IsDefault, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*domain.Account, error) {
	return loadAccount(ctx, r.pool, id, false)
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM paper_trading_accounts
		WHERE user_id = $1
		ORDER BY created_at, account_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, scanAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}

	for _, a := range accounts {
		if err := loadPositions(ctx, r.pool, a); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func (r *AccountRepository) SetDefault(ctx context.Context, userID, accountID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE paper_trading_accounts
		SET is_default = (account_id = $2)
		WHERE user_id = $1
		  AND EXISTS (SELECT 1 FROM paper_trading_accounts WHERE account_id = $2 AND user_id = $1)`,
		userID, accountID)
	if err != nil {
		return fmt.Errorf("failed to set default account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for positions, trades and orders.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM paper_trading_accounts WHERE account_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Mutate locks the account row with SELECT ... FOR UPDATE for the duration
// of fn and writes the result and staged rows in a single batch.
func (r *AccountRepository) Mutate(ctx context.Context, id string, fn func(a *domain.Account, tx store.Tx) error) (*domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx, r.logger)

	a, err := loadAccount(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	staged := &stagedTx{}
	if err := fn(a, staged); err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE paper_trading_accounts
		SET name = $2, cash_balance = $3, reserved_cash = $4, updated_at = $5
		WHERE account_id = $1`,
		a.AccountID, a.Name, a.CashBalance, a.ReservedCash, a.UpdatedAt)
	batch.Queue(`DELETE FROM account_positions WHERE account_id = $1`, a.AccountID)
	for _, p := range a.Positions {
		batch.Queue(`
			INSERT INTO account_positions (account_id, symbol, quantity, reserved_quantity, average_cost)
			VALUES ($1, $2, $3, $4, $5)`,
			a.AccountID, p.Symbol, p.Quantity, p.ReservedQuantity, p.AverageCost)
	}
	if staged.clear {
		batch.Queue(`DELETE FROM paper_trades WHERE account_id = $1`, a.AccountID)
		batch.Queue(`DELETE FROM paper_orders WHERE account_id = $1`, a.AccountID)
	}
	for _, o := range staged.orders {
		queueOrderUpsert(batch, o)
	}
	for _, t := range staged.trades {
		queueTradeInsert(batch, t)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return nil, fmt.Errorf("failed to write account mutation: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return a, nil
}

type stagedTx struct {
	trades []*domain.Trade
	orders []*domain.Order
	clear  bool
}

func (t *stagedTx) InsertTrade(tr *domain.Trade) { t.trades = append(t.trades, tr) }
func (t *stagedTx) SaveOrder(o *domain.Order)    { t.orders = append(t.orders, o) }

func (t *stagedTx) ClearHistory() {
	t.clear = true
	t.trades = nil
	t.orders = nil
}

func loadAccount(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Account, error) {
	sql := `SELECT ` + accountColumns + ` FROM paper_trading_accounts WHERE account_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	if err := loadPositions(ctx, q, a); err != nil {
		return nil, err
	}
	return a, nil
}

func scanAccount(row pgx.CollectableRow) (*domain.Account, error) {
	a := &domain.Account{Positions: make(map[string]*domain.Position)}
	err := row.Scan(&a.AccountID, &a.UserID, &a.Name, &a.InitialBalance, &a.CashBalance,
		&a.ReservedCash, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func loadPositions(ctx context.Context, q querier, a *domain.Account) error {
	rows, err := q.Query(ctx, `
		SELECT symbol, quantity, reserved_quantity, average_cost
		FROM account_positions
		WHERE account_id = $1`, a.AccountID)
	if err != nil {
		return fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &domain.Position{}
		if err := rows.Scan(&p.Symbol, &p.Quantity, &p.ReservedQuantity, &p.AverageCost); err != nil {
			return fmt.Errorf("failed to scan position: %w", err)
		}
		a.Positions[p.Symbol] = p
	}
	return rows.Err()
}
