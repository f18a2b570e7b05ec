package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewMetrics_NoopProvider(t *testing.T) {
	m, err := NewMetrics("papertrader-test")
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordTrade(ctx, "buy", "market")
	m.RecordOrderSettled(ctx, "filled")
	m.RecordRefresh(ctx, time.Second, 3, nil)
	m.RecordRefresh(ctx, time.Second, 0, errors.New("boom"))
	m.RecordAIRequest(ctx, "openai", "ok")
	m.RecordWebhookDelivery(ctx, "trade.executed", false)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordTrade(ctx, "sell", "limit")
	m.RecordOrderSettled(ctx, "expired")
	m.RecordRefresh(ctx, time.Millisecond, 1, nil)
	m.RecordAIRequest(ctx, "groq", "error")
	m.RecordWebhookDelivery(ctx, "order.expired", true)
}

func TestInitMetrics_NoEndpoint(t *testing.T) {
	shutdown, err := InitMetrics(context.Background(), MetricConfig{ServiceName: "papertrader"})
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
