package sync

import (
	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/reconcile"
	"github.com/budgetlens/sync-backend/internal/ledger"
)

// Options holds per-cycle configuration
type Options struct {
	// AccountID scopes the reconciliation pass. Empty reconciles nothing.
	AccountID string

	// Since overrides the fetch lower bound for this cycle.
	Since *dates.Date

	// OverrideDefaultLimit disables the default lookback window when no
	// cursor and no Since are given, fetching the full history.
	OverrideDefaultLimit bool

	// Type filters the feed server-side.
	Type ledger.TransactionType
}

// Result holds the counts of one completed cycle
type Result struct {
	Fetched        int
	SkippedDeleted int
	Discovered     int

	Matched     int
	Linked      int
	NoCandidate int
	Ambiguous   int

	ServerKnowledge int64
	CursorAdvanced  bool
}

func (r *Result) tally(outcome reconcile.Outcome) {
	switch outcome {
	case reconcile.OutcomeMatched:
		r.Matched++
	case reconcile.OutcomeLinked:
		r.Linked++
	case reconcile.OutcomeNoCandidate:
		r.NoCandidate++
	case reconcile.OutcomeAmbiguous:
		r.Ambiguous++
	}
}
