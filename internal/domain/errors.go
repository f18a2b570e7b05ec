package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountNotFound       = errors.New("account_not_found")
	ErrAccountLimitReached   = errors.New("account_limit_reached")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrOrderNotCancellable   = errors.New("order_not_cancellable")
	ErrInsufficientBalance   = errors.New("insufficient_balance")
	ErrInsufficientHoldings  = errors.New("insufficient_holdings")
	ErrNoMarketPrice         = errors.New("no_market_price")
	ErrSymbolNotFound        = errors.New("symbol_not_found")
	ErrQuoteNotFound         = errors.New("quote_not_found")
	ErrSettingsNotFound      = errors.New("settings_not_found")
	ErrNotificationNotFound  = errors.New("notification_not_found")
	ErrWebhookNotFound       = errors.New("webhook_not_found")
	ErrUnknownProvider       = errors.New("unknown_provider")
	ErrUnknownExchange       = errors.New("unknown_exchange")
	ErrExchangeNotConfigured = errors.New("exchange_not_configured")
	ErrUpstreamUnavailable   = errors.New("upstream_unavailable")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
