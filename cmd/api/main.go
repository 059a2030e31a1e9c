package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/budgetlens/sync-backend/internal/api"
	"github.com/budgetlens/sync-backend/internal/application/service"
	appsync "github.com/budgetlens/sync-backend/internal/application/sync"
	"github.com/budgetlens/sync-backend/internal/domain/cursor"
	"github.com/budgetlens/sync-backend/internal/domain/reconcile"
	"github.com/budgetlens/sync-backend/internal/infrastructure/config"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/ledger"
	"github.com/budgetlens/sync-backend/internal/observability"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	flag.Parse()

	// Local .env is optional
	_ = godotenv.Load()

	cfg := config.LoadOrEnvWithPath(*configFile)
	logger := observability.NewLogger(cfg.Observability.Logging)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to open storage", "error", err, "path", cfg.Storage.DatabasePath)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	client := ledger.NewHTTPClient(ledger.HTTPConfig{
		BaseURL:     cfg.Ledger.BaseURL,
		AccessToken: cfg.Ledger.AccessToken,
		Timeout:     cfg.Ledger.Timeout,
		RetryMax:    3,
	})

	cursors := cursor.NewManager(store, cursor.WithLookbackDays(cfg.Sync.LookbackDays))
	engine := reconcile.NewEngine(store, reconcile.Config{WindowDays: cfg.Sync.WindowDays}, logger)
	orchestrator := appsync.NewOrchestrator(client, store, cursors, engine, logger)

	syncService := service.NewSyncService(orchestrator, logger)
	syncService.StartBackgroundCleanup(5 * time.Minute)
	defer syncService.StopBackgroundCleanup()

	server := api.NewServer(store, syncService, cursors, cfg.API, logger)

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	if err := server.Run(addr); err != nil {
		logger.Error("api server exited", "error", err)
		os.Exit(1)
	}
}
