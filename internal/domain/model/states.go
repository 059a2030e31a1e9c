package model

import (
	"fmt"

	"github.com/budgetlens/sync-backend/internal/syncerr"
)

// SyncState is the status of pushing a reconciled transaction back to the
// external ledger service.
type SyncState string

const (
	SyncUnknown    SyncState = "UNKNOWN"
	SyncNotNeeded  SyncState = "NOT_NEEDED"
	SyncNeedsSync  SyncState = "NEEDS_SYNC"
	SyncSucceeded  SyncState = "SUCCEEDED"
	SyncNeedsRetry SyncState = "NEEDS_RETRY"
	SyncFailed     SyncState = "FAILED"
)

// Valid reports whether s is a member of the closed state set.
func (s SyncState) Valid() bool {
	switch s {
	case SyncUnknown, SyncNotNeeded, SyncNeedsSync, SyncSucceeded, SyncNeedsRetry, SyncFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a reconciliation attempt. A later
// correction creates a new pass rather than mutating a terminal record.
func (s SyncState) Terminal() bool {
	switch s {
	case SyncSucceeded, SyncFailed, SyncNotNeeded:
		return true
	}
	return false
}

// syncTransitions encodes the legal sync-state machine. NOT_NEEDED is
// reachable from any state and handled separately in CanTransitionTo.
var syncTransitions = map[SyncState][]SyncState{
	SyncUnknown:    {SyncNeedsSync},
	SyncNeedsSync:  {SyncSucceeded, SyncNeedsRetry},
	SyncNeedsRetry: {SyncSucceeded, SyncFailed},
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s SyncState) CanTransitionTo(next SyncState) bool {
	if next == SyncNotNeeded {
		return true
	}
	for _, allowed := range syncTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// TransitionTo validates and performs a sync-state transition, identifying
// the AppTransaction by its natural key on failure.
func (s SyncState) TransitionTo(next SyncState, appTransactionID string) (SyncState, error) {
	if !next.Valid() {
		return s, syncerr.InvariantViolation("app_transaction", appTransactionID,
			fmt.Sprintf("unknown sync state %q", next))
	}
	if !s.CanTransitionTo(next) {
		return s, syncerr.InvariantViolation("app_transaction", appTransactionID,
			fmt.Sprintf("illegal sync state transition %s -> %s", s, next))
	}
	return next, nil
}

// DetailState tracks whether enrichment detail has been obtained for an
// external ledger transaction. Absence of an entry means "not yet seen".
type DetailState string

const (
	NeedDetails        DetailState = "NEED_DETAILS"
	HaveDetails        DetailState = "HAVE_DETAILS"
	FailedToGetDetails DetailState = "FAILED_TO_GET_DETAILS"
)

// Valid reports whether s is a member of the closed state set.
func (s DetailState) Valid() bool {
	switch s {
	case NeedDetails, HaveDetails, FailedToGetDetails:
		return true
	}
	return false
}

// Terminal reports whether s can no longer change during normal sync flow.
// Only an operator reset moves an entry out of a terminal state.
func (s DetailState) Terminal() bool { return s == HaveDetails || s == FailedToGetDetails }
