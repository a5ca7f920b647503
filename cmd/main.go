package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/withinboredom/open-handshake/internal/bot"
	"github.com/withinboredom/open-handshake/internal/config"
	"github.com/withinboredom/open-handshake/internal/db"
	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/metrics"
	"github.com/withinboredom/open-handshake/internal/notifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Starting Open Handshake on %s in mode: %s", cfg.Symbol, cfg.Mode)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	storage, err := newStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer storage.Close()

	var balances *db.BalanceLog
	if cfg.BalanceLogPath != "" {
		balances, err = db.NewBalanceLog(cfg.BalanceLogPath, cfg.BaseAsset, cfg.QuoteAsset)
		if err != nil {
			log.Fatalf("Failed to open balance log: %v", err)
		}
		defer balances.Close()
	}

	var notify notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notify = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID,
			cfg.NotificationRetries, cfg.NotificationDelay.Std())
		log.Println("Telegram notifications enabled")
	}

	m := metrics.New()

	gateway, err := newGateway(cfg, m)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	log.Printf("Trading through gateway: %s", gateway.Name())

	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("Metrics server failed: %v", err)
			}
		}()
		log.Printf("Metrics exposed on %s/metrics", cfg.MetricsAddr)
	}

	b := bot.New(bot.Deps{
		Gateway:  gateway,
		Cfg:      cfg,
		Storage:  storage,
		Balances: balances,
		Notifier: notify,
		Metrics:  m,
	})

	if err := b.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Bot stopped: %v", err)
	}
	log.Println("Shutdown complete")
}

// newStorage picks Postgres when a connection string is configured and
// falls back to in-memory history otherwise.
func newStorage(cfg config.Config) (db.Storage, error) {
	if cfg.DBConnStr == "" {
		log.Println("No database configured, keeping history in memory")
		return db.NewMemory(), nil
	}
	storage, err := db.New(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
	if err != nil {
		return nil, err
	}
	log.Println("Connected to Postgres")
	return storage, nil
}

func newGateway(cfg config.Config, m *metrics.Metrics) (exchange.Gateway, error) {
	if cfg.Mode == "paper" || cfg.Exchange == "paper" {
		// Play balances and a synthetic book; the paper gateway never
		// fills anything on its own, so these only shape ladder sizing.
		gw := exchange.NewPaper(cfg.Symbol,
			exchange.Balance{Asset: cfg.BaseAsset, Unlocked: 10000},
			exchange.Balance{Asset: cfg.QuoteAsset, Unlocked: 1})
		gw.SetDepth(exchange.Depth{
			Bids: market.DepthSnapshot{
				{Price: 0.000020, Quantity: 4000},
				{Price: 0.000019, Quantity: 9000},
				{Price: 0.000018, Quantity: 30000},
			},
			Asks: market.DepthSnapshot{
				{Price: 0.000022, Quantity: 5000},
				{Price: 0.000023, Quantity: 8000},
				{Price: 0.000025, Quantity: 40000},
			},
		})
		return gw, nil
	}
	switch cfg.Exchange {
	case "namebase":
		gw := exchange.NewNamebase(exchange.NamebaseConfig{
			BaseURL:    cfg.NamebaseURL,
			Key:        cfg.APIKey,
			Secret:     cfg.APISecret,
			Symbol:     cfg.Symbol,
			BaseAsset:  cfg.BaseAsset,
			QuoteAsset: cfg.QuoteAsset,
		})
		gw.OnRetry = m.GatewayRetries.Inc
		return gw, nil
	case "wallex":
		return exchange.NewWallex(cfg.APIKey, cfg.Symbol, cfg.BaseAsset, cfg.QuoteAsset), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Exchange)
	}
}
