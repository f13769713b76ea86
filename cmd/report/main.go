package main

import (
	"context"
	"fmt"
	"os"

	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/database"
	"stealth-signal-bot/internal/logger"
	"stealth-signal-bot/internal/performance"
	"stealth-signal-bot/internal/report"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	trades := database.NewTradeRepository(db)

	ctx := context.Background()
	closed, err := trades.GetClosed(ctx)
	if err != nil {
		log.Fatal("Failed to load closed trades", zap.Error(err))
	}
	open, err := trades.GetOpen(ctx)
	if err != nil {
		log.Fatal("Failed to load open trades", zap.Error(err))
	}

	report.NewConsole(os.Stdout).Print(performance.Calculate(closed, cfg.Trading.InitialCapital), open)
}
