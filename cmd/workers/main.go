package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"reforest-portal/portal-backend/internal/config"
	"reforest-portal/portal-backend/internal/funding"
	"reforest-portal/portal-backend/internal/scheduler"
	"reforest-portal/portal-backend/pkg/database"
)

// The worker keeps funding_campaigns.current_amount reconciled with the donation
// log. It runs one pass on startup and then follows the configured schedule.
func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.Connect(ctx, cfg.Database.GetDatabaseURL(), database.PoolOptions{
		MaxOpenConns: cfg.Campaigns.MaxConcurrent + 1,
		MaxIdleConns: cfg.Campaigns.MaxConcurrent,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database")

	// Create worker
	refresherConfig := scheduler.DefaultCampaignRefresherConfig()
	refresherConfig.Schedule = cfg.Campaigns.RefreshSchedule
	refresherConfig.BatchSize = cfg.Campaigns.BatchSize
	refresherConfig.MaxConcurrent = cfg.Campaigns.MaxConcurrent

	ledger := funding.NewService(funding.NewRepository(db), logger)
	refresher, err := scheduler.NewCampaignRefresher(ledger, logger, refresherConfig)
	if err != nil {
		logger.Fatal("Failed to create campaign refresher", zap.Error(err))
	}

	if _, err := refresher.RunOnce(ctx); err != nil {
		logger.Error("Initial campaign refresh failed", zap.Error(err))
	}

	if err := refresher.Start(); err != nil {
		logger.Fatal("Failed to start campaign refresher", zap.Error(err))
	}
	logger.Info("Next campaign refresh", zap.Time("at", refresher.NextRun()))

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	refresher.Stop()
	logger.Info("Campaign refresher stopped", zap.Int64("runs", refresher.Runs()))
}
