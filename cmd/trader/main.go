package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stealth-signal-bot/internal/api"
	"stealth-signal-bot/internal/bot"
	"stealth-signal-bot/internal/broadcast"
	"stealth-signal-bot/internal/broker"
	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/cooldown"
	"stealth-signal-bot/internal/database"
	"stealth-signal-bot/internal/indicators"
	"stealth-signal-bot/internal/logger"
	"stealth-signal-bot/internal/marketdata"
	"stealth-signal-bot/internal/metrics"
	"stealth-signal-bot/internal/orchestrator"
	"stealth-signal-bot/internal/universe"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	store, err := config.NewStore(cfg)
	if err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")
	signals := database.NewSignalRepository(db)
	trades := database.NewTradeRepository(db)

	var market marketdata.Provider
	switch cfg.MarketData.Provider {
	case "rest":
		market = marketdata.NewRestClient(cfg.MarketData, log)
		log.Info("Using REST market data", zap.String("base_url", cfg.MarketData.BaseURL))
	default:
		market = marketdata.NewSimulated()
		log.Info("Using simulated market data")
	}
	if cfg.MarketData.CacheTTL > 0 {
		market = marketdata.NewCached(market, cfg.MarketData.CacheTTL)
	}

	recorder := metrics.New()
	hub := broadcast.NewHub(cfg.Broadcast, log, broadcast.WithMetrics(recorder))
	cooldowns := cooldown.NewFromConfig(cfg.Scanner)
	registry := indicators.NewDefaultRegistry(cfg.Scanner.ModuleWeights, cfg.Scanner.ModuleEnabled)

	orch := orchestrator.New(log, store, universe.NewLive(store), market, registry, cooldowns, signals, hub,
		orchestrator.WithMetrics(recorder))
	paper := broker.NewPaperBroker(log, store, signals, trades, market, hub, broker.WithMetrics(recorder))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := paper.Load(ctx); err != nil {
		log.Fatal("Failed to restore open positions", zap.Error(err))
	}
	log.Info("Paper broker ready",
		zap.Int("open_positions", len(paper.OpenPositions())),
		zap.Float64("cash", paper.Cash()),
	)

	controller := bot.NewController(log, store, orch, paper, cooldowns, hub)

	handler := api.NewHandler(log, store, controller, paper, signals, trades, http.HandlerFunc(hub.ServeWS), recorder.Handler())
	server := api.NewServer(log, cfg.Server.Port, handler)
	server.Start()

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){hub.Run, paper.Monitor, controller.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}
	cancel()
	wg.Wait()

	log.Info("Bot has been shut down.")
}
