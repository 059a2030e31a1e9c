// Package reconcile links bank transactions to merchant orders and computes
// the sync state of the application transaction bridging them to the ledger.
package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

// Config holds matching configuration.
type Config struct {
	// WindowDays is how far an order date may sit from the bank post date,
	// in either direction, and still be considered.
	WindowDays int

	// ApplicationID identifies this application on the records it creates.
	ApplicationID string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WindowDays:    5,
		ApplicationID: "budgetlens",
	}
}

// Outcome describes how a reconciliation pass resolved.
type Outcome string

const (
	// OutcomeLinked means an order was found directly through an existing link.
	OutcomeLinked Outcome = "linked"
	// OutcomeMatched means a single order won the amount+window search.
	OutcomeMatched Outcome = "matched"
	// OutcomeNoCandidate means nothing to match yet; evidence is incomplete.
	OutcomeNoCandidate Outcome = "no_candidate"
	// OutcomeAmbiguous means tie-breaks were exhausted; manual resolution needed.
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Result is the output of reconciling one bank transaction.
type Result struct {
	Outcome        Outcome
	Order          *model.MerchantOrder
	AppTransaction *model.AppTransaction
	DateDiffDays   int
}

// Engine matches bank transactions with merchant orders.
type Engine struct {
	repo   storage.Repository
	config Config
	logger *slog.Logger
}

// NewEngine creates an engine with the given config.
func NewEngine(repo storage.Repository, config Config, logger *slog.Logger) *Engine {
	if config.WindowDays <= 0 {
		config.WindowDays = DefaultConfig().WindowDays
	}
	if config.ApplicationID == "" {
		config.ApplicationID = DefaultConfig().ApplicationID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, config: config, logger: logger}
}

// findOrder selects the merchant order for a bank transaction.
//
// Priority: an existing link wins without a search; otherwise candidates are
// orders in the date window with exactly the same amount in mills. Ties break
// on smallest absolute date difference, then earliest order date. Remaining
// ambiguity is reported rather than guessed away.
func (e *Engine) findOrder(tx *model.BankTransaction) (order *model.MerchantOrder, dateDiff int, ambiguous bool, err error) {
	if tx.OrderID != "" {
		linked, err := e.repo.GetMerchantOrder(tx.OrderID)
		if err == storage.ErrNotFound {
			return nil, 0, false, syncerr.InvariantViolation("bank_transaction", tx.BankTransactionID,
				fmt.Sprintf("linked merchant order %s does not exist", tx.OrderID))
		}
		if err != nil {
			return nil, 0, false, err
		}
		return linked, dates.AbsDaysBetween(tx.PostDate, linked.OrderDate), false, nil
	}

	from := tx.PostDate.Add(-e.config.WindowDays)
	to := tx.PostDate.Add(e.config.WindowDays)
	candidates, err := e.repo.ListMerchantOrdersInWindow(from, to)
	if err != nil {
		return nil, 0, false, err
	}

	var best *model.MerchantOrder
	bestDiff := e.config.WindowDays + 1
	tied := false

	for _, candidate := range candidates {
		if candidate.AmountMills != tx.AmountMills {
			continue
		}

		diff := dates.AbsDaysBetween(tx.PostDate, candidate.OrderDate)
		switch {
		case best == nil || diff < bestDiff:
			best, bestDiff, tied = candidate, diff, false
		case diff == bestDiff:
			// Same distance: the earlier order date wins; an exact date
			// tie cannot be broken.
			if candidate.OrderDate.Before(best.OrderDate) {
				best, tied = candidate, false
			} else if candidate.OrderDate == best.OrderDate {
				tied = true
			}
		}
	}

	if best == nil {
		return nil, 0, false, nil
	}
	if tied {
		return nil, bestDiff, true, nil
	}
	return best, bestDiff, false, nil
}

// Reconcile links one bank transaction to its merchant order, creating or
// updating the bridging app transaction and its sync state. The write set is
// idempotent: re-running over the same inputs converges on the same records.
func (e *Engine) Reconcile(tx *model.BankTransaction) (*Result, error) {
	hadLink := tx.OrderID != ""

	order, dateDiff, ambiguous, err := e.findOrder(tx)
	if err != nil {
		return nil, err
	}

	appTx, err := e.loadOrCreateAppTransaction(tx)
	if err != nil {
		return nil, err
	}

	result := &Result{AppTransaction: appTx, DateDiffDays: dateDiff}

	switch {
	case ambiguous:
		// Exhausted tie-breaks are a normal terminal outcome, not an error:
		// flag the record for manual resolution instead of guessing.
		result.Outcome = OutcomeAmbiguous
		if appTx.SyncState == model.SyncNeedsSync {
			appTx.SyncState = model.SyncNeedsRetry
		}
		e.logger.Warn("ambiguous reconciliation",
			"bank_transaction_id", tx.BankTransactionID,
			"amount_mills", tx.AmountMills,
			"post_date", tx.PostDate.String(),
		)

	case order == nil:
		result.Outcome = OutcomeNoCandidate

	default:
		result.Order = order
		result.Outcome = OutcomeMatched
		if hadLink {
			result.Outcome = OutcomeLinked
		} else {
			if err := e.repo.LinkBankTransactionToOrder(tx.ID, order.ID); err != nil {
				return nil, err
			}
			tx.OrderID = order.ID
		}
		appTx.MerchantTransactionID = order.OrderID
	}

	if _, err := e.repo.SaveAppTransaction(appTx); err != nil {
		return nil, err
	}
	return result, nil
}

// ReconcilePending reconciles every unlinked bank transaction in an account.
func (e *Engine) ReconcilePending(accountID string) ([]*Result, error) {
	pending, err := e.repo.ListUnlinkedBankTransactions(accountID)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(pending))
	for _, tx := range pending {
		result, err := e.Reconcile(tx)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// loadOrCreateAppTransaction finds the app transaction bridging a bank
// transaction, creating it in NEEDS_SYNC when absent. The bank natural key
// doubles as the app transaction natural key for engine-created records.
func (e *Engine) loadOrCreateAppTransaction(tx *model.BankTransaction) (*model.AppTransaction, error) {
	existing, err := e.repo.GetAppTransactionByNaturalKey(tx.BankTransactionID)
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	appTx := &model.AppTransaction{
		SchemaVersion:    model.SchemaVersion,
		ApplicationID:    e.config.ApplicationID,
		AccountID:        tx.AccountID,
		AppAccountID:     tx.AccountID,
		AppTransactionID: tx.BankTransactionID,
		PostDate:         tx.PostDate,
		AmountMills:      tx.AmountMills,
		SyncState:        model.SyncUnknown,
	}

	// Freshly created with no sync attempted yet.
	next, err := appTx.SyncState.TransitionTo(model.SyncNeedsSync, appTx.AppTransactionID)
	if err != nil {
		return nil, err
	}
	appTx.SyncState = next
	return appTx, nil
}

// PushOutcome classifies the result of pushing a reconciled transaction to
// the external ledger service.
type PushOutcome int

const (
	// PushSucceeded: the ledger accepted the transaction.
	PushSucceeded PushOutcome = iota
	// PushTransientFailure: the push failed but may be retried.
	PushTransientFailure
	// PushPermanentFailure: retries exhausted or the ledger rejected it.
	PushPermanentFailure
	// PushNotNeeded: no further action required (e.g. duplicate).
	PushNotNeeded
)

// RecordPushResult applies a push outcome to the app transaction's sync state
// machine and, on success, assigns the ledger transaction id. Terminal states
// reject further outcomes; a later correction is a new reconciliation pass.
func (e *Engine) RecordPushResult(appTransactionID, ledgerTransactionID string, outcome PushOutcome) error {
	appTx, err := e.repo.GetAppTransactionByNaturalKey(appTransactionID)
	if err == storage.ErrNotFound {
		return syncerr.InvariantViolation("app_transaction", appTransactionID, "no such app transaction")
	}
	if err != nil {
		return err
	}

	var target model.SyncState
	switch outcome {
	case PushSucceeded:
		target = model.SyncSucceeded
	case PushTransientFailure:
		target = model.SyncNeedsRetry
	case PushPermanentFailure:
		target = model.SyncFailed
	case PushNotNeeded:
		target = model.SyncNotNeeded
	default:
		return syncerr.InvariantViolation("app_transaction", appTransactionID,
			fmt.Sprintf("unknown push outcome %d", outcome))
	}

	next, err := appTx.SyncState.TransitionTo(target, appTransactionID)
	if err != nil {
		return err
	}
	appTx.SyncState = next

	if outcome == PushSucceeded {
		appTx.LedgerTransactionID = ledgerTransactionID
	}

	_, err = e.repo.SaveAppTransaction(appTx)
	return err
}
