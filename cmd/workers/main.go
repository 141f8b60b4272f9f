package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/config"
	"greenfin/portal/portal-backend/internal/csr"
	"greenfin/portal/portal-backend/internal/database"
	"greenfin/portal/portal-backend/internal/logging"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	csrService := csr.NewService(csr.NewRepository(db.Gorm), logger)
	reconciler := NewPoolReconciler(csrService, cfg.Workers.ReconcileSchedule, logger)

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := reconciler.Start(ctx); err != nil {
		logger.Fatal("Failed to start pool reconciler", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	reconciler.Stop()
	logger.Info("Workers stopped")
}
