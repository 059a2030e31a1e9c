package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	appsync "github.com/budgetlens/sync-backend/internal/application/sync"
	"github.com/budgetlens/sync-backend/internal/domain/cursor"
	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/reconcile"
	"github.com/budgetlens/sync-backend/internal/infrastructure/config"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/ledger"
	"github.com/budgetlens/sync-backend/internal/observability"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		budgetID   = flag.String("budget", "", "Budget to sync (defaults to config)")
		accountID  = flag.String("account", "", "Account to reconcile after fetching")
		sinceDate  = flag.String("since", "", "Explicit since date (YYYY-MM-DD)")
		noLimit    = flag.Bool("no-limit", false, "Disable the default lookback window on first sync")
		txType     = flag.String("type", "", "Feed type filter (uncategorized, unapproved)")
		timeout    = flag.Duration("timeout", 5*time.Minute, "Overall cycle timeout")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	// Local .env is optional
	_ = godotenv.Load()

	cfg := config.LoadOrEnvWithPath(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	logger := observability.NewLogger(cfg.Observability.Logging)

	if *budgetID == "" {
		*budgetID = cfg.Ledger.BudgetID
	}
	cfg.Ledger.BudgetID = *budgetID
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

	opts := appsync.Options{
		AccountID:            *accountID,
		OverrideDefaultLimit: *noLimit,
		Type:                 ledger.TransactionType(*txType),
	}
	if *sinceDate != "" {
		since, err := dates.Parse(*sinceDate)
		if err != nil {
			logger.Error("invalid since date", "value", *sinceDate, "error", err)
			os.Exit(1)
		}
		opts.Since = &since
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := orchestrator.RunCycle(ctx, *budgetID, opts)
	if err != nil {
		switch {
		case syncerr.IsAuth(err):
			logger.Error("authentication failed, check the ledger token", "error", err)
		case syncerr.IsTransient(err):
			logger.Error("cycle failed on a retryable error, rerun to resume", "error", err)
		default:
			logger.Error("cycle failed", "error", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Sync complete: fetched=%d discovered=%d skipped_deleted=%d matched=%d linked=%d ambiguous=%d no_candidate=%d server_knowledge=%d\n",
		result.Fetched, result.Discovered, result.SkippedDeleted,
		result.Matched, result.Linked, result.Ambiguous, result.NoCandidate,
		result.ServerKnowledge)
}
