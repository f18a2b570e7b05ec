package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/efreitasn/papertrader/internal/cache"
	"github.com/efreitasn/papertrader/internal/config"
	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/exchange"
	"github.com/efreitasn/papertrader/internal/feed"
	"github.com/efreitasn/papertrader/internal/handler"
	"github.com/efreitasn/papertrader/internal/llm"
	"github.com/efreitasn/papertrader/internal/marketdata"
	"github.com/efreitasn/papertrader/internal/notify"
	"github.com/efreitasn/papertrader/internal/sentiment"
	"github.com/efreitasn/papertrader/internal/service"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/efreitasn/papertrader/internal/store/postgres"
	"github.com/efreitasn/papertrader/internal/telemetry"
)

const (
	serviceName    = "papertrader"
	serviceVersion = "0.1.0"
)

// repositories is the store backend selected at startup.
type repositories struct {
	accounts      store.AccountRepository
	orders        store.OrderRepository
	trades        store.TradeRepository
	settings      store.SettingsRepository
	quotes        store.QuoteRepository
	notifications store.NotificationRepository
	webhooks      store.WebhookRepository
}

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.ParsedLogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			logger.Warn("metrics shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewMetrics(serviceName)
	if err != nil {
		return err
	}

	// Stores.
	repos, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	// Redis is optional: without it quotes are served from the store and
	// notifications fan out in process.
	var (
		quoteCache service.QuoteCache
		broker     notify.Broker = notify.NewMemoryBroker()
	)
	if cfg.RedisAddr != "" {
		cacheCfg := cache.ConfigDefaults()
		cacheCfg.Addr = cfg.RedisAddr
		cacheCfg.Password = cfg.RedisPassword
		cacheCfg.DB = cfg.RedisDB
		cacheCfg.TTL = cfg.QuoteCacheTTL

		client, err := cache.NewClient(cacheCfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer closeRedis(client, logger)

		qc := cache.NewQuoteCache(client, cacheCfg, logger)
		if err := qc.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		quoteCache = qc
		broker = notify.NewRedisBroker(client, cacheCfg.KeyPrefix, logger)
		logger.Info("redis connected", slog.String("addr", cfg.RedisAddr))
	}

	// Integrations.
	llmClient := llm.NewClient(llm.Config{
		Providers: providerConfigs(cfg),
		Timeout:   cfg.AITimeout,
		Logger:    logger,
	})
	var exchanges handler.ExchangeConnector
	if cfg.Integrations != nil && len(cfg.Integrations.Exchanges) > 0 {
		exchanges = exchange.NewConnector(exchangeConfigs(cfg.Integrations), cfg.WebhookTimeout, logger)
	}

	// Engine.
	symbols := domain.NewDefaultSymbolRegistry()
	books := engine.NewBookManager()
	expiry := engine.NewExpiryManager(cfg.ExpirationInterval, books, logger)
	eng := engine.New(books, expiry, logger)

	// Market data.
	mdCfg := marketdata.ClientConfigDefaults()
	mdCfg.BaseURL = cfg.MarketDataURL
	mdCfg.APIKey = cfg.CoinGeckoAPIKey
	mdCfg.RateLimitPerMin = cfg.MarketRateLimitPerMin
	mdCfg.Logger = logger
	market := service.NewMarketService(marketdata.NewClient(mdCfg), repos.quotes, quoteCache, symbols, eng,
		cfg.DefaultSymbols, metrics, logger)
	market.AddListener(eng)

	// Services.
	notifications := service.NewNotificationService(repos.notifications, repos.settings, broker, logger)
	webhooks := service.NewWebhookService(repos.webhooks, cfg.WebhookTimeout, metrics, logger)
	defer webhooks.Wait()
	settings := service.NewSettingsService(repos.settings, repos.accounts, llmClient, cfg.DefaultAIProvider,
		cfg.DefaultSymbols, logger)
	accounts := service.NewAccountService(repos.accounts, eng, market, notifications, webhooks, service.AccountConfig{
		DefaultInitialBalance: cfg.DefaultInitialBalance,
		MaxAccountsPerUser:    cfg.MaxAccountsPerUser,
	}, logger)
	trading := service.NewTradingService(accounts, repos.accounts, repos.orders, repos.trades, eng, market, market,
		symbols, notifications, webhooks, metrics, service.TradingConfig{
			FeeRate:  cfg.TradingFeeRate,
			OrderTTL: cfg.OrderTTL,
		}, logger)
	eng.SetFiller(trading)
	expiry.SetExpirer(trading)

	restored, err := eng.Restore(ctx, repos.orders)
	if err != nil {
		return fmt.Errorf("restore open orders: %w", err)
	}
	logger.Info("order books restored", slog.Int("open_orders", restored))

	feedCfg := feed.DefaultConfig()
	feedCfg.TickInterval = cfg.FeedTickInterval

	router := handler.NewRouter(handler.Services{
		Accounts:      accounts,
		Trading:       trading,
		Market:        market,
		Settings:      settings,
		Notifications: notifications,
		Webhooks:      webhooks,
		Assistant:     service.NewAssistantService(llmClient, settings, accounts, cfg.DefaultAIProvider, metrics, logger),
		Sentiment:     service.NewSentimentService(sentiment.NewGenerator(nil), settings),
		Exchanges:     exchanges,
		MarketFeed:    feed.NewMarketFeed(feedCfg, market, logger),
		Notifier:      feed.NewNotificationFeed(feedCfg, notifications, logger),
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	poller := marketdata.NewPoller(marketdata.PollerConfig{
		Interval: cfg.MarketRefreshInterval,
		Timeout:  cfg.MarketRefreshInterval,
	}, market, market, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		expiry.Start(gctx)
		return poller.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := poller.Stop(shutdownCtx); err != nil {
			logger.Warn("poller stop failed", slog.String("error", err.Error()))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStores selects the store backend. The returned func releases it.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repositories, func(), error) {
	if cfg.StoreBackend != config.BackendPostgres {
		orders := store.NewOrderStore()
		trades := store.NewTradeStore()
		logger.Info("using in-memory store")
		return &repositories{
			accounts:      store.NewAccountStore(trades, orders),
			orders:        orders,
			trades:        trades,
			settings:      store.NewSettingsStore(),
			quotes:        store.NewQuoteStore(),
			notifications: store.NewNotificationStore(),
			webhooks:      store.NewWebhookStore(),
		}, func() {}, nil
	}

	dbCfg := postgres.DefaultDBConfig(cfg.DatabaseURL)
	dbCfg.MaxConns = int32(cfg.DBMaxConns)
	if dbCfg.MinConns > dbCfg.MaxConns {
		dbCfg.MinConns = dbCfg.MaxConns
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := postgres.OpenPool(openCtx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := postgres.NewMigrator(pool, logger).ApplyAll(openCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("using postgres store", slog.Int("max_conns", cfg.DBMaxConns))

	return postgresRepositories(pool, logger), pool.Close, nil
}

func postgresRepositories(pool *pgxpool.Pool, logger *slog.Logger) *repositories {
	return &repositories{
		accounts:      postgres.NewAccountRepository(pool, logger),
		orders:        postgres.NewOrderRepository(pool),
		trades:        postgres.NewTradeRepository(pool),
		settings:      postgres.NewSettingsRepository(pool),
		quotes:        postgres.NewQuoteRepository(pool),
		notifications: postgres.NewNotificationRepository(pool),
		webhooks:      postgres.NewWebhookRepository(pool),
	}
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close failed", slog.String("error", err.Error()))
	}
}

// providerConfigs starts from the built-in providers with keys from the
// environment, then applies entries from the integrations file.
func providerConfigs(cfg *config.Config) map[string]llm.ProviderConfig {
	providers := llm.DefaultProviders()
	for name, key := range cfg.ProviderKeys() {
		if p, ok := providers[name]; ok {
			p.APIKey = key
			providers[name] = p
		}
	}
	if cfg.Integrations == nil {
		return providers
	}

	for _, e := range cfg.Integrations.Providers {
		p := providers[e.Name]
		p.Name = e.Name
		if e.BaseURL != "" {
			p.BaseURL = e.BaseURL
		}
		if e.APIKey != "" {
			p.APIKey = e.APIKey
		}
		if e.DefaultModel != "" {
			p.DefaultModel = e.DefaultModel
		}
		if len(e.Headers) > 0 {
			p.Headers = e.Headers
		}
		providers[e.Name] = p
	}
	return providers
}

func exchangeConfigs(in *config.Integrations) []exchange.Config {
	out := make([]exchange.Config, len(in.Exchanges))
	for i, e := range in.Exchanges {
		out[i] = exchange.Config{
			Name:            e.Name,
			BaseURL:         e.BaseURL,
			APIKey:          e.APIKey,
			APISecret:       e.APISecret,
			RateLimitPerSec: e.RateLimitPerSec,
		}
	}
	return out
}
