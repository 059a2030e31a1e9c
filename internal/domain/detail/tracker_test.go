package detail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

func TestTracker_RecordIfNew_IsIdempotent(t *testing.T) {
	tracker := NewTracker(storage.NewMockRepository())

	created, err := tracker.RecordIfNew("ltx-1")
	require.NoError(t, err)
	assert.True(t, created)

	state, seen, err := tracker.State("ltx-1")
	require.NoError(t, err)
	require.True(t, seen)
	assert.Equal(t, model.NeedDetails, state)

	// Same id again: no new entry, no state change.
	created, err = tracker.RecordIfNew("ltx-1")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestTracker_RecordIfNew_DoesNotTouchTerminalStates(t *testing.T) {
	repo := storage.NewMockRepository()
	tracker := NewTracker(repo)

	require.NoError(t, repo.PutDetailState("ltx-1", model.HaveDetails))

	created, err := tracker.RecordIfNew("ltx-1")
	require.NoError(t, err)
	assert.False(t, created)

	state, _, err := tracker.State("ltx-1")
	require.NoError(t, err)
	assert.Equal(t, model.HaveDetails, state)
}

func TestTracker_MarkResolved_Success(t *testing.T) {
	tracker := NewTracker(storage.NewMockRepository())

	_, err := tracker.RecordIfNew("ltx-1")
	require.NoError(t, err)

	require.NoError(t, tracker.MarkResolved("ltx-1", true))

	state, _, err := tracker.State("ltx-1")
	require.NoError(t, err)
	assert.Equal(t, model.HaveDetails, state)
}

func TestTracker_MarkResolved_Failure(t *testing.T) {
	tracker := NewTracker(storage.NewMockRepository())

	_, err := tracker.RecordIfNew("ltx-1")
	require.NoError(t, err)

	require.NoError(t, tracker.MarkResolved("ltx-1", false))

	state, _, err := tracker.State("ltx-1")
	require.NoError(t, err)
	assert.Equal(t, model.FailedToGetDetails, state)
}

func TestTracker_MarkResolved_TwiceFailsAndLeavesStateUnchanged(t *testing.T) {
	tracker := NewTracker(storage.NewMockRepository())

	_, err := tracker.RecordIfNew("ltx-1")
	require.NoError(t, err)
	require.NoError(t, tracker.MarkResolved("ltx-1", true))

	err = tracker.MarkResolved("ltx-1", false)
	require.Error(t, err)
	assert.True(t, syncerr.IsInvalidTransition(err))

	state, _, err := tracker.State("ltx-1")
	require.NoError(t, err)
	assert.Equal(t, model.HaveDetails, state, "failed call must not overwrite the terminal state")
}

func TestTracker_MarkResolved_UnseenID(t *testing.T) {
	tracker := NewTracker(storage.NewMockRepository())

	err := tracker.MarkResolved("never-seen", true)
	require.Error(t, err)
	assert.True(t, syncerr.IsInvalidTransition(err))
}

func TestTracker_Reset_OperatorAction(t *testing.T) {
	tracker := NewTracker(storage.NewMockRepository())

	_, err := tracker.RecordIfNew("ltx-1")
	require.NoError(t, err)
	require.NoError(t, tracker.MarkResolved("ltx-1", false))

	require.NoError(t, tracker.Reset("ltx-1"))

	state, _, err := tracker.State("ltx-1")
	require.NoError(t, err)
	assert.Equal(t, model.NeedDetails, state)

	// After the reset the normal flow applies again.
	require.NoError(t, tracker.MarkResolved("ltx-1", true))

	err = tracker.Reset("never-seen")
	require.Error(t, err)
	assert.True(t, syncerr.IsInvariantViolation(err))
}
