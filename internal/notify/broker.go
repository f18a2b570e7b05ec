// Package notify fans user notifications out to live subscribers, either in
// process or across instances through Redis pub/sub.
package notify

import (
	"context"
	"sync"

	"github.com/efreitasn/papertrader/internal/domain"
)

// subscriberBuffer bounds each subscriber channel. Slow subscribers miss
// notifications rather than block publishers; the table keeps them.
const subscriberBuffer = 16

// Broker delivers notifications to the subscribers of a user channel.
type Broker interface {
	Publish(ctx context.Context, n *domain.Notification) error
	// Subscribe returns a channel of the user's notifications and a cancel
	// func that closes it.
	Subscribe(ctx context.Context, userID string) (<-chan *domain.Notification, func(), error)
}

// MemoryBroker fans notifications out within the process.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[chan *domain.Notification]struct{}
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan *domain.Notification]struct{})}
}

// Publish sends n to every subscriber of n.UserID without blocking.
func (b *MemoryBroker) Publish(_ context.Context, n *domain.Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[n.UserID] {
		cp := *n
		select {
		case ch <- &cp:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for userID.
func (b *MemoryBroker) Subscribe(_ context.Context, userID string) (<-chan *domain.Notification, func(), error) {
	ch := make(chan *domain.Notification, subscriberBuffer)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan *domain.Notification]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// SubscriberCount returns the number of live subscribers of userID.
func (b *MemoryBroker) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
