package domain

import "time"

// Notification types.
const (
	NotificationTradeExecuted  = "trade_executed"
	NotificationOrderFilled    = "order_filled"
	NotificationOrderCancelled = "order_cancelled"
	NotificationOrderExpired   = "order_expired"
	NotificationOrderRejected  = "order_rejected"
	NotificationAccountReset   = "account_reset"
)

// Notification is a message for a user, a row of account_notifications.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	AccountID string     `json:"account_id,omitempty"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}
