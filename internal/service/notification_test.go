package service

import (
	"errors"
	"testing"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

func TestNotify_PersistsAndPublishes(t *testing.T) {
	env := newTestEnv(t)

	ch, cancel, err := env.notifications.Subscribe(env.ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	env.notifications.Notify(env.ctx, "alice", "acc-1", domain.NotificationTradeExecuted, "Trade executed", "Bought 1 BTC")

	select {
	case n := <-ch:
		if n.Title != "Trade executed" || n.AccountID != "acc-1" || n.ID == "" {
			t.Errorf("unexpected notification: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not published")
	}

	list, err := env.notifications.List(env.ctx, "alice", false, 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("got %d notifications, err=%v", len(list), err)
	}
}

func TestNotify_DisabledStillPersists(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.settings.Update(env.ctx, UpdateSettingsRequest{UserID: "alice", NotificationsEnabled: boolPtr(false)}); err != nil {
		t.Fatalf("settings update failed: %v", err)
	}
	ch, cancel, err := env.notifications.Subscribe(env.ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	env.notifications.Notify(env.ctx, "alice", "", domain.NotificationAccountReset, "Reset", "done")

	select {
	case n := <-ch:
		t.Fatalf("disabled user received %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
	if list, _ := env.notifications.List(env.ctx, "alice", false, 10); len(list) != 1 {
		t.Errorf("expected notification to be stored, got %d", len(list))
	}
}

func TestNotifications_ReadAndDelete(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.notifications.Notify(env.ctx, "alice", "", domain.NotificationTradeExecuted, "t", "m")
	}
	list, _ := env.notifications.List(env.ctx, "alice", false, 10)

	if err := env.notifications.MarkRead(env.ctx, "alice", list[0].ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	unread, _ := env.notifications.List(env.ctx, "alice", true, 10)
	if len(unread) != 2 {
		t.Fatalf("got %d unread, want 2", len(unread))
	}

	n, err := env.notifications.MarkAllRead(env.ctx, "alice")
	if err != nil || n != 2 {
		t.Fatalf("mark all read changed %d, err=%v", n, err)
	}

	if err := env.notifications.Delete(env.ctx, "bob", list[1].ID); !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound for other user, got %v", err)
	}
	if err := env.notifications.Delete(env.ctx, "alice", list[1].ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if list, _ := env.notifications.List(env.ctx, "alice", false, 10); len(list) != 2 {
		t.Errorf("got %d notifications after delete, want 2", len(list))
	}

	if _, err := env.notifications.List(env.ctx, "alice", false, 101); err == nil {
		t.Error("expected validation error for limit 101")
	}
}
