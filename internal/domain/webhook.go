package domain

import "time"

// Webhook events a user can subscribe to.
const (
	EventTradeExecuted  = "trade.executed"
	EventOrderCancelled = "order.cancelled"
	EventOrderExpired   = "order.expired"
	EventAccountReset   = "account.reset"
)

// WebhookEvents lists every supported event in a stable order.
var WebhookEvents = []string{
	EventTradeExecuted,
	EventOrderCancelled,
	EventOrderExpired,
	EventAccountReset,
}

// ValidWebhookEvent reports whether event is one of WebhookEvents.
func ValidWebhookEvent(event string) bool {
	for _, e := range WebhookEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Webhook represents a user's subscription to an event notification.
type Webhook struct {
	WebhookID string
	UserID    string
	Event     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
