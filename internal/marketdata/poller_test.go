package marketdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type staticSymbols []string

func (s staticSymbols) WatchedSymbols() []string { return s }

type countingRefresher struct {
	calls atomic.Int32
	mu    sync.Mutex
	last  []string
	err   error
}

func (r *countingRefresher) Refresh(_ context.Context, symbols []string) (int, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.last = symbols
	r.mu.Unlock()
	return len(symbols), r.err
}

func TestPoller_PollPassesWatchedSymbols(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(PollerConfig{Interval: time.Hour}, staticSymbols{"BTC", "ETH"}, r, nil)
	p.ctx = context.Background()

	p.poll()

	if got := r.calls.Load(); got != 1 {
		t.Fatalf("Refresh calls = %d, want 1", got)
	}
	if len(r.last) != 2 || r.last[0] != "BTC" {
		t.Errorf("Refresh symbols = %v, want [BTC ETH]", r.last)
	}
}

func TestPoller_SkipsWhenNothingWatched(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(PollerConfig{Interval: time.Hour}, staticSymbols{}, r, nil)
	p.ctx = context.Background()

	p.poll()

	if got := r.calls.Load(); got != 0 {
		t.Fatalf("Refresh calls = %d, want 0", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	r := &countingRefresher{err: errors.New("upstream down")}
	p := NewPoller(PollerConfig{Interval: 10 * time.Millisecond}, staticSymbols{"BTC"}, r, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.calls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", r.calls.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}
