package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
)

const maxAccountNameLength = 64

// PriceLookup returns the latest known price of a symbol.
type PriceLookup interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// OrderIndex drops resting orders of an account from the engine.
type OrderIndex interface {
	RemoveAccount(accountID string) int
}

// AccountConfig bounds account creation.
type AccountConfig struct {
	DefaultInitialBalance decimal.Decimal
	MaxAccountsPerUser    int
}

// CreateAccountRequest represents the input for account creation.
type CreateAccountRequest struct {
	UserID         string
	Name           string
	InitialBalance *decimal.Decimal // nil uses the configured default
}

// ResetResult is the outcome of resetting one account in ResetAll.
type ResetResult struct {
	AccountID string
	Name      string
	Account   *domain.Account
	Err       error
}

// PositionValue is a position valued at the latest quote.
type PositionValue struct {
	Symbol               string
	Quantity             decimal.Decimal
	ReservedQuantity     decimal.Decimal
	AverageCost          decimal.Decimal
	CostBasis            decimal.Decimal
	CurrentPrice         decimal.Decimal
	MarketValue          decimal.Decimal
	UnrealizedPnL        decimal.Decimal
	UnrealizedPnLPercent decimal.Decimal
	PriceAvailable       bool
}

// Portfolio is an account with its positions marked to market.
type Portfolio struct {
	Account         *domain.Account
	Positions       []PositionValue
	AvailableCash   decimal.Decimal
	PositionsValue  decimal.Decimal
	TotalValue      decimal.Decimal
	TotalPnL        decimal.Decimal
	TotalPnLPercent decimal.Decimal
	ValuedAt        time.Time
}

// AccountService manages paper-trading accounts and the reset procedure.
type AccountService struct {
	store         store.AccountRepository
	index         OrderIndex
	prices        PriceLookup
	notifications *NotificationService
	webhooks      *WebhookService
	cfg           AccountConfig
	logger        *slog.Logger
	now           func() time.Time

	// createMu serializes creation so the per-user cap and the first-account
	// default hold under concurrent requests.
	createMu sync.Mutex
}

// NewAccountService creates a new AccountService. index, notifications and
// webhooks may be nil.
func NewAccountService(
	accounts store.AccountRepository,
	index OrderIndex,
	prices PriceLookup,
	notifications *NotificationService,
	webhooks *WebhookService,
	cfg AccountConfig,
	logger *slog.Logger,
) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:         accounts,
		index:         index,
		prices:        prices,
		notifications: notifications,
		webhooks:      webhooks,
		cfg:           cfg,
		logger:        logger.With("component", "accounts"),
		now:           time.Now,
	}
}

// Create validates the request and opens a new account. The user's first
// account becomes the default.
func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest) (*domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	if n := utf8.RuneCountInString(name); n < 1 || n > maxAccountNameLength {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("name must be between 1 and %d characters", maxAccountNameLength),
		}
	}
	balance := s.cfg.DefaultInitialBalance
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}
	if err := domain.ValidateCash("initial_balance", balance, domain.MaxInitialBalance); err != nil {
		return nil, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	existing, err := s.store.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxAccountsPerUser > 0 && len(existing) >= s.cfg.MaxAccountsPerUser {
		return nil, domain.ErrAccountLimitReached
	}

	a := domain.NewAccount(uuid.New().String(), req.UserID, name, balance, s.now().UTC())
	a.IsDefault = len(existing) == 0
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("account created", "account_id", a.AccountID, "user_id", a.UserID, "initial_balance", balance.String())
	return a, nil
}

// Get returns the account when it belongs to userID.
func (s *AccountService) Get(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	a, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// List returns the user's accounts, oldest first.
func (s *AccountService) List(ctx context.Context, userID string) ([]*domain.Account, error) {
	return s.store.ListByUser(ctx, userID)
}

// Default returns the user's default account.
func (s *AccountService) Default(ctx context.Context, userID string) (*domain.Account, error) {
	accounts, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.IsDefault {
			return a, nil
		}
	}
	if len(accounts) > 0 {
		return accounts[0], nil
	}
	return nil, domain.ErrAccountNotFound
}

// SetDefault makes accountID the user's only default account.
func (s *AccountService) SetDefault(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	if _, err := s.Get(ctx, userID, accountID); err != nil {
		return nil, err
	}
	if err := s.store.SetDefault(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, accountID)
}

// Delete removes the account with its trades and orders. When the default
// account is deleted the oldest remaining account is promoted.
func (s *AccountService) Delete(ctx context.Context, userID, accountID string) error {
	a, err := s.Get(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if s.index != nil {
		s.index.RemoveAccount(accountID)
	}
	if err := s.store.Delete(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info("account deleted", "account_id", accountID, "user_id", userID)

	if !a.IsDefault {
		return nil
	}
	remaining, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		if err := s.store.SetDefault(ctx, userID, remaining[0].AccountID); err != nil {
			return fmt.Errorf("promoting default account: %w", err)
		}
	}
	return nil
}

// Reset restores the initial balance, clears positions and deletes the
// account's trades and orders.
func (s *AccountService) Reset(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	if _, err := s.Get(ctx, userID, accountID); err != nil {
		return nil, err
	}
	a, err := s.store.Mutate(ctx, accountID, func(a *domain.Account, tx store.Tx) error {
		a.Reset(s.now().UTC())
		tx.ClearHistory()
		return nil
	})
	if err != nil {
		return nil, err
	}
	removed := 0
	if s.index != nil {
		removed = s.index.RemoveAccount(accountID)
	}
	s.logger.Info("account reset", "account_id", accountID, "user_id", userID, "orders_dropped", removed)

	if s.notifications != nil {
		s.notifications.Notify(ctx, userID, accountID, domain.NotificationAccountReset,
			"Account reset",
			fmt.Sprintf("%s was reset to %s USD", a.Name, a.InitialBalance.StringFixed(domain.CashScale)))
	}
	if s.webhooks != nil {
		s.webhooks.DispatchAccountReset(ctx, a)
	}
	return a, nil
}

// ResetAll resets every account of the user one at a time. A failure is
// recorded in that account's result and the loop continues.
func (s *AccountService) ResetAll(ctx context.Context, userID string) ([]ResetResult, error) {
	accounts, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	results := make([]ResetResult, 0, len(accounts))
	for _, a := range accounts {
		res := ResetResult{AccountID: a.AccountID, Name: a.Name}
		res.Account, res.Err = s.Reset(ctx, userID, a.AccountID)
		if res.Err != nil {
			s.logger.Error("account reset failed", "account_id", a.AccountID, "error", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Portfolio values the account's positions at the latest quotes. Positions
// without a quote are valued at cost and flagged.
func (s *AccountService) Portfolio(ctx context.Context, userID, accountID string) (*Portfolio, error) {
	a, err := s.Get(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.value(ctx, a), nil
}

func (s *AccountService) value(ctx context.Context, a *domain.Account) *Portfolio {
	p := &Portfolio{
		Account:        a,
		Positions:      make([]PositionValue, 0, len(a.Positions)),
		AvailableCash:  a.AvailableCash(),
		PositionsValue: decimal.Zero,
		ValuedAt:       s.now().UTC(),
	}
	for _, sym := range a.Symbols() {
		pos := a.Positions[sym]
		pv := PositionValue{
			Symbol:           sym,
			Quantity:         pos.Quantity,
			ReservedQuantity: pos.ReservedQuantity,
			AverageCost:      pos.AverageCost,
			CostBasis:        domain.RoundAmount(pos.Quantity.Mul(pos.AverageCost)),
			CurrentPrice:     pos.AverageCost,
		}
		if s.prices != nil {
			if price, ok := s.prices.LatestPrice(ctx, sym); ok {
				pv.CurrentPrice = price
				pv.PriceAvailable = true
			}
		}
		pv.MarketValue = domain.RoundAmount(pos.Quantity.Mul(pv.CurrentPrice))
		pv.UnrealizedPnL = pv.MarketValue.Sub(pv.CostBasis)
		pv.UnrealizedPnLPercent = percentOf(pv.UnrealizedPnL, pv.CostBasis)
		p.PositionsValue = p.PositionsValue.Add(pv.MarketValue)
		p.Positions = append(p.Positions, pv)
	}
	p.TotalValue = a.CashBalance.Add(p.PositionsValue)
	p.TotalPnL = p.TotalValue.Sub(a.InitialBalance)
	p.TotalPnLPercent = percentOf(p.TotalPnL, a.InitialBalance)
	return p
}

// Summary renders the portfolio as plain text for the assistant's context.
func (p *Portfolio) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Paper trading account %q. Cash: %s USD (available %s). Total value: %s USD. Total PnL: %s USD (%s%%).",
		p.Account.Name,
		p.Account.CashBalance.StringFixed(2),
		p.AvailableCash.StringFixed(2),
		p.TotalValue.StringFixed(2),
		p.TotalPnL.StringFixed(2),
		p.TotalPnLPercent.StringFixed(2))
	if len(p.Positions) == 0 {
		b.WriteString(" No open positions.")
		return b.String()
	}
	b.WriteString(" Positions:")
	for _, pv := range p.Positions {
		fmt.Fprintf(&b, " %s qty %s avg cost %s", pv.Symbol, pv.Quantity.String(), pv.AverageCost.StringFixed(2))
		if pv.PriceAvailable {
			fmt.Fprintf(&b, " price %s unrealized %s;", pv.CurrentPrice.StringFixed(2), pv.UnrealizedPnL.StringFixed(2))
		} else {
			b.WriteString(" price unavailable;")
		}
	}
	return b.String()
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(decimal.NewFromInt(100)).DivRound(whole, 4)
}
