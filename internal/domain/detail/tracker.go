// Package detail tracks, per external ledger transaction, whether enrichment
// detail has been obtained.
//
// The tracker is the mechanism that makes repeated analysis of the same feed
// idempotent: an id that already has a state contributes nothing when it is
// seen again.
package detail

import (
	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

// Tracker is the per-transaction detail state machine.
type Tracker struct {
	store storage.DetailStateRepository
}

// NewTracker creates a tracker over the given detail-state store.
func NewTracker(store storage.DetailStateRepository) *Tracker {
	return &Tracker{store: store}
}

// RecordIfNew creates a NEED_DETAILS entry for id if none exists and reports
// whether the id was newly discovered. An existing entry, whatever its state,
// is left untouched. Each call is independently atomic: a crash between calls
// never corrupts previously written entries.
func (t *Tracker) RecordIfNew(id string) (bool, error) {
	_, seen, err := t.store.GetDetailState(id)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	if err := t.store.PutDetailState(id, model.NeedDetails); err != nil {
		return false, err
	}
	return true, nil
}

// MarkResolved transitions id from NEED_DETAILS to HAVE_DETAILS (success) or
// FAILED_TO_GET_DETAILS (failure). Any other current state, including an
// absent entry, is an invalid transition and leaves the entry unchanged.
func (t *Tracker) MarkResolved(id string, success bool) error {
	target := model.HaveDetails
	if !success {
		target = model.FailedToGetDetails
	}

	current, seen, err := t.store.GetDetailState(id)
	if err != nil {
		return err
	}
	if !seen {
		return &syncerr.InvalidTransitionError{
			Kind: "detail_state", ID: id, From: "(unseen)", To: string(target),
		}
	}
	if current != model.NeedDetails {
		return &syncerr.InvalidTransitionError{
			Kind: "detail_state", ID: id, From: string(current), To: string(target),
		}
	}

	return t.store.PutDetailState(id, target)
}

// State returns the current detail state for id; the boolean is false when
// the id has never been seen.
func (t *Tracker) State(id string) (model.DetailState, bool, error) {
	return t.store.GetDetailState(id)
}

// Reset forces an entry back to NEED_DETAILS. This is an operator action for
// re-enrichment, never part of the normal sync flow.
func (t *Tracker) Reset(id string) error {
	_, seen, err := t.store.GetDetailState(id)
	if err != nil {
		return err
	}
	if !seen {
		return syncerr.InvariantViolation("detail_state", id, "cannot reset an entry that does not exist")
	}
	return t.store.PutDetailState(id, model.NeedDetails)
}
