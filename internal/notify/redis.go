package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/papertrader/internal/domain"
)

// RedisBroker publishes notifications on prefix:notifications:USER channels.
type RedisBroker struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker creates a broker on an existing client.
func NewRedisBroker(client *redis.Client, keyPrefix string, logger *slog.Logger) *RedisBroker {
	if keyPrefix == "" {
		keyPrefix = "papertrader"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With("component", "notify-redis"),
	}
}

func (b *RedisBroker) channel(userID string) string {
	return fmt.Sprintf("%s:notifications:%s", b.keyPrefix, userID)
}

// Publish sends n as JSON on the user's channel.
func (b *RedisBroker) Publish(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}
	if err := b.client.Publish(ctx, b.channel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed, then relays
// decoded messages until cancel is called or ctx ends.
func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan *domain.Notification, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}

	out := make(chan *domain.Notification, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n domain.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.logger.Warn("dropping malformed notification", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- &n:
				default:
					b.logger.Debug("subscriber full, dropping notification", "user_id", userID, "id", n.ID)
				}
			}
		}
	}()

	return out, cancel, nil
}
