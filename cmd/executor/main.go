// Command executor runs a standalone signal executor: it joins the
// executor consumer group, places orders through the paper broker and
// reports fills on the fill stream. Run several instances with
// distinct BUS_CONSUMER names to share the load.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/executor"
	"meanrev-trading-bot/internal/logging"
	sigbus "meanrev-trading-bot/internal/signal"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:     cfg.LoggingConfig.Level,
		Output:    cfg.LoggingConfig.Output,
		Component: "executor-main",
	})
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := sigbus.NewRedisClient(cfg.BusConfig)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("Redis unreachable", "address", cfg.BusConfig.Address, "error", err)
	}

	slippage := envFloat("EXECUTOR_SLIPPAGE_BPS", 1.0)
	latency := time.Duration(envFloat("EXECUTOR_LATENCY_MS", 50)) * time.Millisecond
	broker := executor.NewPaperBroker(slippage, latency)

	exec := executor.New(client, cfg.BusConfig, cfg.StrategyConfig.LotSize, broker, cfg.StrategyConfig.Symbols)
	if err := exec.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Executor exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Executor stopped")
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
