package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/efreitasn/papertrader/internal/telemetry"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	UserID string
	URL    string
	Events []string
}

// WebhookService handles webhook CRUD and event dispatch.
type WebhookService struct {
	store   store.WebhookRepository
	client  *http.Client
	metrics *telemetry.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore store.WebhookRepository,
	webhookTimeout time.Duration,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		store:   webhookStore,
		metrics: metrics,
		logger:  logger.With("component", "webhooks"),
		client: &http.Client{
			Timeout: webhookTimeout,
		},
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	// Validate URL.
	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	// Validate events.
	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[string]bool, len(req.Events))
	dedupedEvents := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !domain.ValidWebhookEvent(event) {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: " + strings.Join(domain.WebhookEvents, ", "),
			}
		}
		if !seen[event] {
			seen[event] = true
			dedupedEvents = append(dedupedEvents, event)
		}
	}

	// Upsert each (user_id, event) pair.
	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(dedupedEvents))

	for _, event := range dedupedEvents {
		stored, created, err := s.store.Upsert(ctx, &domain.Webhook{
			WebhookID: uuid.New().String(),
			UserID:    req.UserID,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, false, err
		}
		if created {
			anyCreated = true
		}
		webhooks = append(webhooks, stored)
	}

	return webhooks, anyCreated, nil
}

// List returns all webhook subscriptions of the user.
func (s *WebhookService) List(ctx context.Context, userID string) ([]*domain.Webhook, error) {
	return s.store.ListByUser(ctx, userID)
}

// Delete removes one of the user's webhook subscriptions.
func (s *WebhookService) Delete(ctx context.Context, userID, webhookID string) error {
	wh, err := s.store.Get(ctx, webhookID)
	if err != nil {
		return err
	}
	if wh.UserID != userID {
		return domain.ErrWebhookNotFound
	}
	return s.store.Delete(ctx, webhookID)
}

// eventPayload is the JSON envelope of every webhook delivery.
type eventPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type tradeExecutedData struct {
	TradeID     string          `json:"trade_id"`
	AccountID   string          `json:"account_id"`
	OrderID     string          `json:"order_id,omitempty"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	OrderType   string          `json:"order_type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	Fee         decimal.Decimal `json:"fee"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

type orderEventData struct {
	AccountID  string          `json:"account_id"`
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Status     string          `json:"status"`
}

type accountResetData struct {
	AccountID   string          `json:"account_id"`
	Name        string          `json:"name"`
	CashBalance decimal.Decimal `json:"cash_balance"`
}

// DispatchTradeExecuted dispatches a trade.executed webhook to the trade's
// owner. Fire-and-forget.
func (s *WebhookService) DispatchTradeExecuted(ctx context.Context, trade *domain.Trade) {
	s.dispatch(ctx, trade.UserID, domain.EventTradeExecuted, trade.ExecutedAt, tradeExecutedData{
		TradeID:     trade.TradeID,
		AccountID:   trade.AccountID,
		OrderID:     trade.OrderID,
		Symbol:      trade.Symbol,
		Side:        string(trade.Side),
		OrderType:   string(trade.OrderType),
		Price:       trade.Price,
		Quantity:    trade.Quantity,
		Total:       trade.Total,
		Fee:         trade.Fee,
		RealizedPnL: trade.RealizedPnL,
	})
}

// DispatchOrderExpired dispatches an order.expired webhook. Fire-and-forget.
func (s *WebhookService) DispatchOrderExpired(ctx context.Context, order *domain.Order) {
	s.dispatch(ctx, order.UserID, domain.EventOrderExpired, time.Now(), buildOrderEventData(order))
}

// DispatchOrderCancelled dispatches an order.cancelled webhook.
// Fire-and-forget.
func (s *WebhookService) DispatchOrderCancelled(ctx context.Context, order *domain.Order) {
	s.dispatch(ctx, order.UserID, domain.EventOrderCancelled, time.Now(), buildOrderEventData(order))
}

// DispatchAccountReset dispatches an account.reset webhook. Fire-and-forget.
func (s *WebhookService) DispatchAccountReset(ctx context.Context, account *domain.Account) {
	s.dispatch(ctx, account.UserID, domain.EventAccountReset, account.UpdatedAt, accountResetData{
		AccountID:   account.AccountID,
		Name:        account.Name,
		CashBalance: account.CashBalance,
	})
}

func buildOrderEventData(order *domain.Order) orderEventData {
	return orderEventData{
		AccountID:  order.AccountID,
		OrderID:    order.OrderID,
		Symbol:     order.Symbol,
		Side:       string(order.Side),
		LimitPrice: order.LimitPrice,
		Quantity:   order.Quantity,
		Status:     string(order.Status),
	}
}

func (s *WebhookService) dispatch(ctx context.Context, userID, event string, at time.Time, data any) {
	wh, err := s.store.GetByUserEvent(ctx, userID, event)
	if err != nil {
		s.logger.Warn("webhook lookup failed", "user_id", userID, "event", event, "error", err)
		return
	}
	if wh == nil {
		return
	}

	payload := eventPayload{
		Event:     event,
		Timestamp: at.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      data,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(wh, event, payload)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

// deliver sends the webhook payload via HTTP POST with the required headers.
// Failures are logged and otherwise ignored.
func (s *WebhookService) deliver(wh *domain.Webhook, eventType string, payload any) {
	ctx := context.Background()
	ok := false
	defer func() { s.metrics.RecordWebhookDelivery(ctx, eventType, ok) }()

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("webhook payload marshal failed", "webhook_id", wh.WebhookID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("webhook request build failed", "webhook_id", wh.WebhookID, "error", err)
		return
	}

	deliveryID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", deliveryID)
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed", "webhook_id", wh.WebhookID, "delivery_id", deliveryID, "error", err)
		return
	}
	resp.Body.Close()

	ok = resp.StatusCode < 300
	if !ok {
		s.logger.Warn("webhook endpoint rejected delivery",
			"webhook_id", wh.WebhookID,
			"delivery_id", deliveryID,
			"status", resp.StatusCode,
		)
	}
}
