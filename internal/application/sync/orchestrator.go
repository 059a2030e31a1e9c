// Package sync runs the incremental sync cycle: fetch the ledger feed from
// the last known watermark, record discoveries, reconcile pending bank
// transactions, and advance the watermark only after everything else landed.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/budgetlens/sync-backend/internal/domain/cursor"
	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/detail"
	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/domain/reconcile"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/ledger"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

// Orchestrator runs the sync cycle
type Orchestrator struct {
	client  ledger.Client
	repo    storage.Repository
	cursors *cursor.Manager
	tracker *detail.Tracker
	engine  *reconcile.Engine
	logger  *slog.Logger

	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

// NewOrchestrator creates a new sync orchestrator
func NewOrchestrator(
	client ledger.Client,
	repo storage.Repository,
	cursors *cursor.Manager,
	engine *reconcile.Engine,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:  client,
		repo:    repo,
		cursors: cursors,
		tracker: detail.NewTracker(repo),
		engine:  engine,
		logger:  logger,
		locks:   make(map[string]*gosync.Mutex),
	}
}

// budgetLock returns the mutex guarding one budget's cycle.
func (o *Orchestrator) budgetLock(budgetID string) *gosync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[budgetID]
	if !ok {
		lock = &gosync.Mutex{}
		o.locks[budgetID] = lock
	}
	return lock
}

// RunCycle executes one full sync cycle for a budget.
//
// The cursor is persisted last: every step before it is idempotent, so a
// failure anywhere leaves the watermark untouched and the next cycle simply
// re-fetches and re-applies the same page.
func (o *Orchestrator) RunCycle(ctx context.Context, budgetID string, opts Options) (*Result, error) {
	lock := o.budgetLock(budgetID)
	if !lock.TryLock() {
		return nil, syncerr.Transient("sync cycle",
			fmt.Errorf("a cycle for budget %s is already running", budgetID))
	}
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, syncerr.Transient("sync cycle", err)
	}

	since, err := o.cursors.EffectiveSince(budgetID, opts.Since, opts.OverrideDefaultLimit)
	if err != nil {
		return nil, err
	}

	var lastKnown *int64
	current, err := o.cursors.Current(budgetID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		lastKnown = &current.ServerKnowledge
	}

	o.logger.Info("starting sync cycle",
		"budget_id", budgetID,
		"since", sinceString(since),
		"has_cursor", current != nil,
	)

	page, err := o.client.FetchTransactions(ctx, budgetID, since, opts.Type, lastKnown)
	if err != nil {
		return nil, err
	}

	result := &Result{Fetched: len(page.Transactions), ServerKnowledge: page.ServerKnowledge}

	for _, tx := range page.Transactions {
		if tx.Deleted {
			result.SkippedDeleted++
			continue
		}
		discovered, err := o.tracker.RecordIfNew(tx.ID)
		if err != nil {
			return nil, fmt.Errorf("recording transaction %s: %w", tx.ID, err)
		}
		if discovered {
			result.Discovered++
		}
	}

	if opts.AccountID != "" {
		outcomes, err := o.engine.ReconcilePending(opts.AccountID)
		if err != nil {
			return nil, err
		}
		for _, outcome := range outcomes {
			result.tally(outcome.Outcome)
		}
	}

	if err := o.persistCursor(budgetID, current, page.ServerKnowledge, result); err != nil {
		return nil, err
	}

	o.logger.Info("sync cycle complete",
		"budget_id", budgetID,
		"fetched", result.Fetched,
		"discovered", result.Discovered,
		"skipped_deleted", result.SkippedDeleted,
		"matched", result.Matched,
		"ambiguous", result.Ambiguous,
		"server_knowledge", result.ServerKnowledge,
	)
	return result, nil
}

// persistCursor advances the watermark when the feed moved it forward. A feed
// that reports lower knowledge than what is stored is left alone rather than
// regressed.
func (o *Orchestrator) persistCursor(budgetID string, current *model.SyncCursor, value int64, result *Result) error {
	if current != nil && value <= current.ServerKnowledge {
		if value < current.ServerKnowledge {
			o.logger.Warn("feed reported stale server knowledge, keeping cursor",
				"budget_id", budgetID,
				"stored", current.ServerKnowledge,
				"reported", value,
			)
		}
		return nil
	}
	if err := o.cursors.Persist(budgetID, value, false); err != nil {
		return err
	}
	result.CursorAdvanced = true
	return nil
}

func sinceString(d *dates.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
