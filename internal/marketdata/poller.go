package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SymbolSource lists the symbols worth refreshing.
type SymbolSource interface {
	WatchedSymbols() []string
}

// Refresher fetches and stores quotes for symbols.
type Refresher interface {
	Refresh(ctx context.Context, symbols []string) (int, error)
}

// PollerConfig holds poller configuration.
type PollerConfig struct {
	Interval time.Duration // default 30s
	Timeout  time.Duration // per refresh, default 20s
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 30 * time.Second,
		Timeout:  20 * time.Second,
	}
}

// Poller periodically refreshes quotes for the watched symbols.
type Poller struct {
	cfg       PollerConfig
	symbols   SymbolSource
	refresher Refresher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig, symbols SymbolSource, refresher Refresher, logger *slog.Logger) *Poller {
	defaults := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:       cfg,
		symbols:   symbols,
		refresher: refresher,
		logger:    logger.With("component", "market-poller"),
	}
}

// Start begins the polling loop. The first refresh runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("market poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop cancels the loop and waits for an in-flight refresh.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("market poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	symbols := p.symbols.WatchedSymbols()
	if len(symbols) == 0 {
		p.logger.Debug("no symbols to refresh")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	n, err := p.refresher.Refresh(ctx, symbols)
	if err != nil {
		p.logger.Warn("market refresh failed", "symbols", len(symbols), "error", err)
		return
	}
	p.logger.Debug("market refresh complete",
		"symbols", len(symbols),
		"updated", n,
		"duration", time.Since(start),
	)
}
