package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

func newTestWebhook(id, userID, event, url string) *domain.Webhook {
	now := time.Now()
	return &domain.Webhook{
		WebhookID: id,
		UserID:    userID,
		Event:     event,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWebhookStore_Upsert_NewSubscription(t *testing.T) {
	s := NewWebhookStore()
	ctx := context.Background()

	got, created, err := s.Upsert(ctx, newTestWebhook("wh-1", "user-1", domain.EventTradeExecuted, "https://example.com/hook"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected Upsert to report a new subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected webhook ID wh-1, got %s", got.WebhookID)
	}
}

func TestWebhookStore_Upsert_UpdateURLKeepsID(t *testing.T) {
	s := NewWebhookStore()
	ctx := context.Background()
	s.Upsert(ctx, newTestWebhook("wh-1", "user-1", domain.EventTradeExecuted, "https://example.com/old"))

	w2 := newTestWebhook("wh-2", "user-1", domain.EventTradeExecuted, "https://example.com/new")
	w2.UpdatedAt = time.Now().Add(time.Second)
	got, created, _ := s.Upsert(ctx, w2)
	if created {
		t.Fatal("expected Upsert to update the existing subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected stable webhook ID wh-1, got %s", got.WebhookID)
	}
	if got.URL != "https://example.com/new" {
		t.Fatalf("expected URL to be updated, got %s", got.URL)
	}

	if _, err := s.Get(ctx, "wh-2"); err != domain.ErrWebhookNotFound {
		t.Fatalf("expected ErrWebhookNotFound for wh-2, got %v", err)
	}
}

func TestWebhookStore_ListByUser_SortedByEvent(t *testing.T) {
	s := NewWebhookStore()
	ctx := context.Background()
	s.Upsert(ctx, newTestWebhook("wh-1", "user-1", domain.EventTradeExecuted, "https://example.com/trades"))
	s.Upsert(ctx, newTestWebhook("wh-2", "user-1", domain.EventAccountReset, "https://example.com/reset"))

	list, _ := s.ListByUser(ctx, "user-1")
	if len(list) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(list))
	}
	if list[0].Event != domain.EventAccountReset {
		t.Fatalf("expected %s first, got %s", domain.EventAccountReset, list[0].Event)
	}

	empty, _ := s.ListByUser(ctx, "user-2")
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected non-nil empty slice, got %v", empty)
	}
}

func TestWebhookStore_Delete_CleansBothIndexes(t *testing.T) {
	s := NewWebhookStore()
	ctx := context.Background()
	s.Upsert(ctx, newTestWebhook("wh-1", "user-1", domain.EventOrderExpired, "https://example.com/hook"))

	if err := s.Delete(ctx, "wh-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(ctx, "wh-1"); err != domain.ErrWebhookNotFound {
		t.Fatalf("expected ErrWebhookNotFound after delete, got %v", err)
	}
	got, err := s.GetByUserEvent(ctx, "user-1", domain.EventOrderExpired)
	if err != nil || got != nil {
		t.Fatalf("GetByUserEvent after delete = %v, %v; want nil, nil", got, err)
	}
	if err := s.Delete(ctx, "wh-1"); err != domain.ErrWebhookNotFound {
		t.Fatalf("expected ErrWebhookNotFound on second delete, got %v", err)
	}
}

func TestWebhookStore_ConcurrentAccess(t *testing.T) {
	s := NewWebhookStore()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Upsert(ctx, newTestWebhook(
				fmt.Sprintf("wh-%d", i),
				fmt.Sprintf("user-%d", i),
				domain.EventTradeExecuted,
				fmt.Sprintf("https://example.com/hook/%d", i),
			))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.ListByUser(ctx, fmt.Sprintf("user-%d", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			s.Delete(ctx, fmt.Sprintf("wh-%d", i))
		}(i)
	}
	wg.Wait()
}
