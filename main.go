package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/api"
	"meanrev-trading-bot/internal/database"
	"meanrev-trading-bot/internal/engine"
	"meanrev-trading-bot/internal/logging"
	sigbus "meanrev-trading-bot/internal/signal"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:     cfg.LoggingConfig.Level,
		Output:    cfg.LoggingConfig.Output,
		Component: "main",
	})
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := sigbus.NewRedisClient(cfg.BusConfig)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("Redis unreachable", "address", cfg.BusConfig.Address, "error", err)
	}

	db, err := database.NewDB(ctx, cfg.DatabaseConfig)
	if err != nil {
		logger.Fatal("Database init failed", "error", err)
	}
	defer db.Close()
	if db == nil {
		logger.Info("Trade history disabled, running without postgres")
	}

	runtime, err := engine.NewRuntime(ctx, cfg, client, db)
	if err != nil {
		logger.Fatal("Runtime init failed", "error", err)
	}

	server := api.NewServer(cfg.ServerConfig, cfg.BusConfig, client, runtime, db)
	go func() {
		if err := server.Run(ctx); err != nil {
			logger.Error("Ops server stopped", "error", err)
		}
	}()

	logger.Info("Signal generator starting",
		"symbols", len(cfg.StrategyConfig.Symbols), "feed", cfg.FeedConfig.URL)

	if err := runtime.Run(ctx); err != nil {
		logger.Error("Pipeline exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
