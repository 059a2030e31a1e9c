// Package cursor owns the persisted server-knowledge watermark and the
// default lookback window policy for first-time syncs.
package cursor

import (
	"fmt"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

// DefaultLookbackDays bounds the first fetch when no cursor and no explicit
// since-date exist. Without it an empty budget would pull its entire history.
const DefaultLookbackDays = 90

// Manager guards the per-budget watermark.
type Manager struct {
	store        storage.CursorRepository
	lookbackDays int
	today        func() dates.Date
}

// Option configures a Manager.
type Option func(*Manager)

// WithLookbackDays overrides the default first-fetch window.
func WithLookbackDays(days int) Option {
	return func(m *Manager) { m.lookbackDays = days }
}

// WithToday overrides the clock, for tests.
func WithToday(today func() dates.Date) Option {
	return func(m *Manager) { m.today = today }
}

// NewManager creates a cursor manager over the given store.
func NewManager(store storage.CursorRepository, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		lookbackDays: DefaultLookbackDays,
		today:        dates.Today,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the stored watermark for a budget, or nil when no cycle
// has completed yet.
func (m *Manager) Current(budgetID string) (*model.SyncCursor, error) {
	c, err := m.store.GetCursor(budgetID)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// EffectiveSince computes the date bound for the next fetch.
//
// When a cursor exists the cursor alone bounds the fetch, so the requested
// date passes through unchanged (possibly nil). With no cursor, no requested
// date, and no override, today minus the lookback window is returned as a
// safety bound against an unbounded first fetch.
func (m *Manager) EffectiveSince(budgetID string, requested *dates.Date, overrideDefaultLimit bool) (*dates.Date, error) {
	current, err := m.Current(budgetID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return requested, nil
	}

	if requested == nil && !overrideDefaultLimit {
		d := m.today().Add(-m.lookbackDays)
		return &d, nil
	}
	return requested, nil
}

// Persist overwrites the stored watermark. A value lower than the current one
// is rejected unless force is set: a regressing cursor usually means the feed
// returned stale knowledge, and silently accepting it would re-open a window
// the engine already processed.
func (m *Manager) Persist(budgetID string, value int64, force bool) error {
	if value < 0 {
		return syncerr.InvariantViolation("sync_cursor", budgetID,
			fmt.Sprintf("server knowledge must be >= 0, got %d", value))
	}

	current, err := m.Current(budgetID)
	if err != nil {
		return err
	}
	if current != nil && value < current.ServerKnowledge && !force {
		return syncerr.InvariantViolation("sync_cursor", budgetID,
			fmt.Sprintf("refusing to regress server knowledge %d -> %d without force",
				current.ServerKnowledge, value))
	}

	return m.store.SaveCursor(&model.SyncCursor{
		SchemaVersion:   model.SchemaVersion,
		BudgetID:        budgetID,
		ServerKnowledge: value,
	})
}
