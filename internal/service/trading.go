package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/efreitasn/papertrader/internal/telemetry"
)

// Pagination bounds shared by the order and trade listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// errOrderSettled aborts a fill or expiry whose order was already settled by
// a concurrent cancel, fill or reset.
var errOrderSettled = errors.New("order no longer open")

// OrderBook is the engine's view of resting limit orders.
type OrderBook interface {
	Add(o *domain.Order)
	Remove(o *domain.Order)
}

// SymbolTracker adds symbols to the market refresh set.
type SymbolTracker interface {
	Track(symbols ...string)
}

// TradingConfig holds trading parameters.
type TradingConfig struct {
	FeeRate  decimal.Decimal
	OrderTTL time.Duration
}

// ExecuteTradeRequest represents the input for a paper trade. An empty
// AccountID trades on the user's default account.
type ExecuteTradeRequest struct {
	UserID     string
	AccountID  string
	Symbol     string
	Side       domain.Side
	Type       domain.OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal // required for limit, must be nil for market
	ExpiresAt  *time.Time       // limit only, defaults to now + OrderTTL
}

// ExecuteTradeResult is the outcome of a paper trade: a Trade for market
// orders, a resting Order for limit orders.
type ExecuteTradeResult struct {
	Account *domain.Account
	Trade   *domain.Trade
	Order   *domain.Order
}

// TradingService executes paper trades and settles limit orders. It is the
// engine's Filler and Expirer.
type TradingService struct {
	accounts      *AccountService
	accountStore  store.AccountRepository
	orders        store.OrderRepository
	trades        store.TradeRepository
	book          OrderBook
	prices        PriceLookup
	tracker       SymbolTracker
	symbols       *domain.SymbolRegistry
	notifications *NotificationService
	webhooks      *WebhookService
	metrics       *telemetry.Metrics
	cfg           TradingConfig
	logger        *slog.Logger
	now           func() time.Time
}

var (
	_ engine.Filler  = (*TradingService)(nil)
	_ engine.Expirer = (*TradingService)(nil)
)

// NewTradingService creates a new TradingService. tracker, notifications
// and webhooks may be nil.
func NewTradingService(
	accounts *AccountService,
	accountStore store.AccountRepository,
	orders store.OrderRepository,
	trades store.TradeRepository,
	book OrderBook,
	prices PriceLookup,
	tracker SymbolTracker,
	symbols *domain.SymbolRegistry,
	notifications *NotificationService,
	webhooks *WebhookService,
	metrics *telemetry.Metrics,
	cfg TradingConfig,
	logger *slog.Logger,
) *TradingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradingService{
		accounts:      accounts,
		accountStore:  accountStore,
		orders:        orders,
		trades:        trades,
		book:          book,
		prices:        prices,
		tracker:       tracker,
		symbols:       symbols,
		notifications: notifications,
		webhooks:      webhooks,
		metrics:       metrics,
		cfg:           cfg,
		logger:        logger.With("component", "trading"),
		now:           time.Now,
	}
}

// ExecuteTrade validates the request and either executes a market order at
// the latest quote or rests a limit order against the account's balance.
func (s *TradingService) ExecuteTrade(ctx context.Context, req ExecuteTradeRequest) (*ExecuteTradeResult, error) {
	if !domain.ValidOrderType(req.Type) {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order type: %s. Must be one of: market, limit", req.Type),
		}
	}
	if !domain.ValidSide(req.Side) {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	req.Symbol = domain.NormalizeSymbol(req.Symbol)
	if !domain.ValidSymbol(req.Symbol) {
		return nil, &domain.ValidationError{Message: "symbol must be 1-10 uppercase letters or digits"}
	}
	if err := domain.ValidateQuantity("quantity", req.Quantity); err != nil {
		return nil, err
	}
	if !s.symbols.Exists(req.Symbol) {
		return nil, domain.ErrSymbolNotFound
	}

	var account *domain.Account
	var err error
	if req.AccountID == "" {
		account, err = s.accounts.Default(ctx, req.UserID)
	} else {
		account, err = s.accounts.Get(ctx, req.UserID, req.AccountID)
	}
	if err != nil {
		return nil, err
	}

	if s.tracker != nil {
		s.tracker.Track(req.Symbol)
	}
	if req.Type == domain.OrderTypeLimit {
		return s.placeLimitOrder(ctx, account, req)
	}
	return s.executeMarketOrder(ctx, account, req)
}

func (s *TradingService) executeMarketOrder(ctx context.Context, account *domain.Account, req ExecuteTradeRequest) (*ExecuteTradeResult, error) {
	if req.LimitPrice != nil {
		return nil, &domain.ValidationError{Message: "market orders must not include limit_price"}
	}
	if req.ExpiresAt != nil {
		return nil, &domain.ValidationError{Message: "market orders must not include expires_at"}
	}
	price, ok := s.prices.LatestPrice(ctx, req.Symbol)
	if !ok {
		return nil, domain.ErrNoMarketPrice
	}

	var trade *domain.Trade
	updated, err := s.accountStore.Mutate(ctx, account.AccountID, func(a *domain.Account, tx store.Tx) error {
		t, err := s.execute(a, req.Symbol, req.Side, domain.OrderTypeMarket, req.Quantity, price)
		if err != nil {
			return err
		}
		tx.InsertTrade(t)
		trade = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("market order executed",
		"account_id", updated.AccountID, "trade_id", trade.TradeID,
		"symbol", trade.Symbol, "side", trade.Side,
		"quantity", trade.Quantity.String(), "price", trade.Price.String())
	s.afterTrade(ctx, trade, domain.NotificationTradeExecuted, "Trade executed")
	return &ExecuteTradeResult{Account: updated, Trade: trade}, nil
}

// execute applies a trade of qty at price to a and returns the trade row.
func (s *TradingService) execute(a *domain.Account, symbol string, side domain.Side, typ domain.OrderType, qty, price decimal.Decimal) (*domain.Trade, error) {
	now := s.now().UTC()
	total := domain.RoundAmount(qty.Mul(price))
	fee := domain.Fee(total, s.cfg.FeeRate)
	realized := decimal.Zero

	if side == domain.SideBuy {
		if err := a.ApplyBuy(symbol, qty, price, fee); err != nil {
			return nil, err
		}
	} else {
		var err error
		realized, err = a.ApplySell(symbol, qty, price, fee)
		if err != nil {
			return nil, err
		}
	}
	a.UpdatedAt = now

	return &domain.Trade{
		TradeID:     uuid.New().String(),
		AccountID:   a.AccountID,
		UserID:      a.UserID,
		Symbol:      symbol,
		Side:        side,
		OrderType:   typ,
		Quantity:    qty,
		Price:       price,
		Total:       total,
		Fee:         fee,
		RealizedPnL: realized,
		ExecutedAt:  now,
	}, nil
}

func (s *TradingService) placeLimitOrder(ctx context.Context, account *domain.Account, req ExecuteTradeRequest) (*ExecuteTradeResult, error) {
	if req.LimitPrice == nil {
		return nil, &domain.ValidationError{Message: "limit_price is required for limit orders"}
	}
	if err := domain.ValidateQuantity("limit_price", *req.LimitPrice); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.OrderTTL)
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
	}
	if !expiresAt.After(now) {
		return nil, &domain.ValidationError{Message: "expires_at must be a future timestamp"}
	}

	order := &domain.Order{
		OrderID:    uuid.New().String(),
		AccountID:  account.AccountID,
		UserID:     account.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		LimitPrice: *req.LimitPrice,
		Quantity:   req.Quantity,
		Status:     domain.OrderStatusOpen,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}

	updated, err := s.accountStore.Mutate(ctx, account.AccountID, func(a *domain.Account, tx store.Tx) error {
		if order.Side == domain.SideBuy {
			order.Reserved = domain.BuyReservation(order.Quantity, order.LimitPrice, s.cfg.FeeRate)
			if err := a.ReserveCash(order.Reserved); err != nil {
				return err
			}
		} else {
			order.Reserved = order.Quantity
			if err := a.ReserveQuantity(order.Symbol, order.Quantity); err != nil {
				return err
			}
		}
		a.UpdatedAt = now
		tx.SaveOrder(order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.book.Add(order)
	s.logger.Info("limit order placed",
		"account_id", order.AccountID, "order_id", order.OrderID,
		"symbol", order.Symbol, "side", order.Side,
		"limit_price", order.LimitPrice.String(), "quantity", order.Quantity.String(),
		"expires_at", order.ExpiresAt)
	return &ExecuteTradeResult{Account: updated, Order: order}, nil
}

// GetOrder returns the order when it belongs to userID.
func (s *TradingService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// CancelOrder cancels an open limit order and releases its reservation.
func (s *TradingService) CancelOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOpen() {
		return nil, domain.ErrOrderNotCancellable
	}

	var cancelled *domain.Order
	_, err = s.accountStore.Mutate(ctx, o.AccountID, func(a *domain.Account, tx store.Tx) error {
		cur, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !cur.IsOpen() {
			return domain.ErrOrderNotCancellable
		}
		now := s.now().UTC()
		releaseReservation(a, cur)
		a.UpdatedAt = now
		cur.Status = domain.OrderStatusCancelled
		cur.CancelledAt = &now
		tx.SaveOrder(cur)
		cancelled = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.book.Remove(cancelled)
	s.logger.Info("order cancelled", "order_id", orderID, "account_id", cancelled.AccountID)
	s.metrics.RecordOrderSettled(ctx, string(domain.OrderStatusCancelled))
	if s.notifications != nil {
		s.notifications.Notify(ctx, cancelled.UserID, cancelled.AccountID, domain.NotificationOrderCancelled,
			"Order cancelled", describeOrder(cancelled)+" was cancelled")
	}
	if s.webhooks != nil {
		s.webhooks.DispatchOrderCancelled(ctx, cancelled)
	}
	return cancelled, nil
}

// FillOrder executes a triggered limit order at the market price. When the
// account can no longer cover the fill the order is rejected instead.
func (s *TradingService) FillOrder(ctx context.Context, order *domain.Order, price decimal.Decimal) {
	var settled *domain.Order
	var trade *domain.Trade

	_, err := s.accountStore.Mutate(ctx, order.AccountID, func(a *domain.Account, tx store.Tx) error {
		cur, err := s.orders.Get(ctx, order.OrderID)
		if err != nil {
			return err
		}
		if !cur.IsOpen() {
			return errOrderSettled
		}
		now := s.now().UTC()
		releaseReservation(a, cur)

		t, err := s.execute(a, cur.Symbol, cur.Side, domain.OrderTypeLimit, cur.Quantity, price)
		if err != nil {
			cur.Status = domain.OrderStatusRejected
			cur.RejectReason = err.Error()
			a.UpdatedAt = now
			tx.SaveOrder(cur)
			settled = cur
			return nil
		}
		t.OrderID = cur.OrderID
		cur.Status = domain.OrderStatusFilled
		cur.TradeID = t.TradeID
		cur.FilledAt = &now
		tx.InsertTrade(t)
		tx.SaveOrder(cur)
		settled, trade = cur, t
		return nil
	})
	if err != nil {
		if errors.Is(err, errOrderSettled) || errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrAccountNotFound) {
			s.logger.Debug("skipping fill of settled order", "order_id", order.OrderID, "reason", err)
			return
		}
		s.logger.Error("order fill failed, order requeued", "order_id", order.OrderID, "error", err)
		s.requeue(order)
		return
	}

	s.metrics.RecordOrderSettled(ctx, string(settled.Status))
	if trade == nil {
		s.logger.Warn("order rejected at fill", "order_id", settled.OrderID, "reason", settled.RejectReason)
		if s.notifications != nil {
			s.notifications.Notify(ctx, settled.UserID, settled.AccountID, domain.NotificationOrderRejected,
				"Order rejected", fmt.Sprintf("%s was rejected: %s", describeOrder(settled), settled.RejectReason))
		}
		return
	}
	s.logger.Info("limit order filled",
		"order_id", settled.OrderID, "trade_id", trade.TradeID, "price", trade.Price.String())
	s.afterTrade(ctx, trade, domain.NotificationOrderFilled, "Order filled")
}

// ExpireOrder releases the reservation of an order past its expiry.
func (s *TradingService) ExpireOrder(ctx context.Context, order *domain.Order) {
	var expired *domain.Order
	_, err := s.accountStore.Mutate(ctx, order.AccountID, func(a *domain.Account, tx store.Tx) error {
		cur, err := s.orders.Get(ctx, order.OrderID)
		if err != nil {
			return err
		}
		if !cur.IsOpen() {
			return errOrderSettled
		}
		now := s.now().UTC()
		releaseReservation(a, cur)
		a.UpdatedAt = now
		cur.Status = domain.OrderStatusExpired
		cur.ExpiredAt = &now
		tx.SaveOrder(cur)
		expired = cur
		return nil
	})
	if err != nil {
		if errors.Is(err, errOrderSettled) || errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrAccountNotFound) {
			return
		}
		s.logger.Error("order expiry failed, order requeued", "order_id", order.OrderID, "error", err)
		s.requeue(order)
		return
	}

	s.logger.Info("order expired", "order_id", expired.OrderID, "account_id", expired.AccountID)
	s.metrics.RecordOrderSettled(ctx, string(domain.OrderStatusExpired))
	if s.notifications != nil {
		s.notifications.Notify(ctx, expired.UserID, expired.AccountID, domain.NotificationOrderExpired,
			"Order expired", describeOrder(expired)+" expired")
	}
	if s.webhooks != nil {
		s.webhooks.DispatchOrderExpired(ctx, expired)
	}
}

// ListOrders returns a page of the account's orders, optionally filtered by
// status.
func (s *TradingService) ListOrders(ctx context.Context, userID, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if status != nil && !domain.ValidOrderStatus(*status) {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: open, filled, cancelled, expired, rejected", *status),
		}
	}
	if err := validatePage(page, limit); err != nil {
		return nil, 0, err
	}
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return nil, 0, err
	}
	return s.orders.ListByAccount(ctx, accountID, status, page, limit)
}

// ListTrades returns a page of the account's trades, newest first.
func (s *TradingService) ListTrades(ctx context.Context, userID, accountID string, page, limit int) ([]*domain.Trade, int, error) {
	if err := validatePage(page, limit); err != nil {
		return nil, 0, err
	}
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return nil, 0, err
	}
	return s.trades.ListByAccount(ctx, accountID, page, limit)
}

func (s *TradingService) afterTrade(ctx context.Context, t *domain.Trade, notification, title string) {
	s.metrics.RecordTrade(ctx, string(t.Side), string(t.OrderType))
	if s.notifications != nil {
		verb := "Bought"
		if t.Side == domain.SideSell {
			verb = "Sold"
		}
		s.notifications.Notify(ctx, t.UserID, t.AccountID, notification, title,
			fmt.Sprintf("%s %s %s at %s USD (fee %s USD)",
				verb, t.Quantity.String(), t.Symbol, t.Price.String(), t.Fee.String()))
	}
	if s.webhooks != nil {
		s.webhooks.DispatchTradeExecuted(ctx, t)
	}
}

// requeue puts an order whose settlement failed back on the engine so the
// next crossing quote or expiry tick retries it. The engine already dropped
// it before calling FillOrder or ExpireOrder.
func (s *TradingService) requeue(o *domain.Order) {
	if s.book == nil {
		return
	}
	s.book.Remove(o)
	s.book.Add(o)
}

func releaseReservation(a *domain.Account, o *domain.Order) {
	if o.Side == domain.SideBuy {
		a.ReleaseCash(o.Reserved)
		return
	}
	a.ReleaseQuantity(o.Symbol, o.Reserved)
}

func describeOrder(o *domain.Order) string {
	return fmt.Sprintf("Limit %s of %s %s at %s", o.Side, o.Quantity.String(), o.Symbol, o.LimitPrice.String())
}

func validatePage(page, limit int) error {
	if page < 1 {
		return &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > MaxPageLimit {
		return &domain.ValidationError{
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit),
		}
	}
	return nil
}
