// Package telemetry records the service's OpenTelemetry metrics.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	tradesExecuted  metric.Int64Counter
	ordersSettled   metric.Int64Counter
	refreshLatency  metric.Float64Histogram
	quotesRefreshed metric.Int64Counter
	aiRequests      metric.Int64Counter
	webhookDeliver  metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
// meterName should typically be the service name.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	trades, err := meter.Int64Counter(
		"paper_trades_executed_total",
		metric.WithDescription("Total number of paper trades executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create paper_trades_executed_total counter: %w", err)
	}

	orders, err := meter.Int64Counter(
		"paper_orders_settled_total",
		metric.WithDescription("Limit orders leaving the open state, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create paper_orders_settled_total counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"market_refresh_duration_seconds",
		metric.WithDescription("Time taken to refresh market data"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create market_refresh_duration_seconds histogram: %w", err)
	}

	quotes, err := meter.Int64Counter(
		"market_quotes_refreshed_total",
		metric.WithDescription("Total number of quotes written to the market data cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create market_quotes_refreshed_total counter: %w", err)
	}

	ai, err := meter.Int64Counter(
		"ai_requests_total",
		metric.WithDescription("Assistant requests by provider and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_requests_total counter: %w", err)
	}

	hooks, err := meter.Int64Counter(
		"webhook_deliveries_total",
		metric.WithDescription("Webhook delivery attempts by event and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook_deliveries_total counter: %w", err)
	}

	return &Metrics{
		tradesExecuted:  trades,
		ordersSettled:   orders,
		refreshLatency:  latency,
		quotesRefreshed: quotes,
		aiRequests:      ai,
		webhookDeliver:  hooks,
	}, nil
}

// RecordTrade increments the executed trades counter.
func (m *Metrics) RecordTrade(ctx context.Context, side, orderType string) {
	if m == nil {
		return
	}
	m.tradesExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("side", side),
		attribute.String("order_type", orderType),
	))
}

// RecordOrderSettled counts a limit order reaching a final status.
func (m *Metrics) RecordOrderSettled(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.ordersSettled.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordRefresh records one market data refresh.
func (m *Metrics) RecordRefresh(ctx context.Context, duration time.Duration, quotes int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.refreshLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	m.quotesRefreshed.Add(ctx, int64(quotes))
}

// RecordAIRequest counts an assistant request.
func (m *Metrics) RecordAIRequest(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	m.aiRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

// RecordWebhookDelivery counts one webhook POST.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, event string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.webhookDeliver.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("status", status),
	))
}
