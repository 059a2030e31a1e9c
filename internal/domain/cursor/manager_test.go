package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

func fixedToday() dates.Date { return dates.New(2024, time.June, 10) }

func TestEffectiveSince_NoCursor_DefaultWindow(t *testing.T) {
	m := NewManager(storage.NewMockRepository(), WithToday(fixedToday))

	since, err := m.EffectiveSince("budget-1", nil, false)
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.Equal(t, "2024-03-12", since.String(), "today minus 90 days")
}

func TestEffectiveSince_NoCursor_OverrideDisablesWindow(t *testing.T) {
	m := NewManager(storage.NewMockRepository(), WithToday(fixedToday))

	since, err := m.EffectiveSince("budget-1", nil, true)
	require.NoError(t, err)
	assert.Nil(t, since)
}

func TestEffectiveSince_NoCursor_RequestedDateWins(t *testing.T) {
	m := NewManager(storage.NewMockRepository(), WithToday(fixedToday))

	requested := dates.New(2024, time.January, 1)
	since, err := m.EffectiveSince("budget-1", &requested, false)
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.Equal(t, requested, *since)
}

func TestEffectiveSince_CursorExists_PassesRequestedThrough(t *testing.T) {
	m := NewManager(storage.NewMockRepository(), WithToday(fixedToday))
	require.NoError(t, m.Persist("budget-1", 42, false))

	// Cursor bounds the fetch; no date substitution.
	since, err := m.EffectiveSince("budget-1", nil, false)
	require.NoError(t, err)
	assert.Nil(t, since)

	requested := dates.New(2024, time.May, 1)
	since, err = m.EffectiveSince("budget-1", &requested, false)
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.Equal(t, requested, *since)
}

func TestPersist_Monotonic(t *testing.T) {
	m := NewManager(storage.NewMockRepository())

	require.NoError(t, m.Persist("budget-1", 10, false))
	require.NoError(t, m.Persist("budget-1", 10, false), "equal value is allowed")
	require.NoError(t, m.Persist("budget-1", 25, false))

	c, err := m.Current("budget-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), c.ServerKnowledge)
}

func TestPersist_RejectsRegressionWithoutForce(t *testing.T) {
	m := NewManager(storage.NewMockRepository())
	require.NoError(t, m.Persist("budget-1", 25, false))

	err := m.Persist("budget-1", 10, false)
	require.Error(t, err)
	assert.True(t, syncerr.IsInvariantViolation(err))

	c, err := m.Current("budget-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), c.ServerKnowledge, "watermark unchanged after rejected regression")
}

func TestPersist_ForceAllowsOperatorReset(t *testing.T) {
	m := NewManager(storage.NewMockRepository())
	require.NoError(t, m.Persist("budget-1", 25, false))

	require.NoError(t, m.Persist("budget-1", 0, true))

	c, err := m.Current("budget-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.ServerKnowledge)
}

func TestPersist_NegativeValueRejected(t *testing.T) {
	m := NewManager(storage.NewMockRepository())

	err := m.Persist("budget-1", -1, true)
	require.Error(t, err)
	assert.True(t, syncerr.IsInvariantViolation(err))
}

func TestCurrent_AbsentIsNil(t *testing.T) {
	m := NewManager(storage.NewMockRepository())

	c, err := m.Current("budget-1")
	require.NoError(t, err)
	assert.Nil(t, c)
}
