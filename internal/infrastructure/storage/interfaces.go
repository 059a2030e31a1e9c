package storage

import (
	"errors"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
)

// ErrNotFound is returned by Get* methods when no entity matches.
var ErrNotFound = errors.New("storage: not found")

// Repository defines the complete record-store interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with the in-memory mock straightforward.
//
// All Save* methods are idempotent upserts keyed by the entity's natural key:
// retrying a half-finished batch wholesale is always safe.
type Repository interface {
	BankTransactionRepository
	MerchantOrderRepository
	AppTransactionRepository
	CursorRepository
	DetailStateRepository
	Close() error
}

// BankTransactionRepository handles the financial institution's records.
type BankTransactionRepository interface {
	// SaveBankTransaction upserts by (AccountID, BankTransactionID) and
	// returns the record's stable id.
	SaveBankTransaction(tx *model.BankTransaction) (string, error)

	GetBankTransaction(id string) (*model.BankTransaction, error)

	// GetBankTransactionByNaturalKey looks up by the external natural key.
	GetBankTransactionByNaturalKey(accountID, bankTransactionID string) (*model.BankTransaction, error)

	// ListUnlinkedBankTransactions returns transactions in an account that
	// have no merchant-order link yet.
	ListUnlinkedBankTransactions(accountID string) ([]*model.BankTransaction, error)

	// LinkBankTransactionToOrder attaches the weak order reference.
	LinkBankTransactionToOrder(id, orderID string) error
}

// MerchantOrderRepository handles merchant order records.
type MerchantOrderRepository interface {
	// SaveMerchantOrder upserts by (MerchantID, OrderID) and returns the
	// record's stable id.
	SaveMerchantOrder(o *model.MerchantOrder) (string, error)

	GetMerchantOrder(id string) (*model.MerchantOrder, error)

	GetMerchantOrderByNaturalKey(merchantID, orderID string) (*model.MerchantOrder, error)

	// ListMerchantOrdersInWindow returns orders dated within [from, to],
	// inclusive on both ends.
	ListMerchantOrdersInWindow(from, to dates.Date) ([]*model.MerchantOrder, error)
}

// AppTransactionRepository handles reconciled application transactions.
type AppTransactionRepository interface {
	// SaveAppTransaction upserts by AppTransactionID and returns the
	// record's stable id.
	SaveAppTransaction(tx *model.AppTransaction) (string, error)

	GetAppTransaction(id string) (*model.AppTransaction, error)

	GetAppTransactionByNaturalKey(appTransactionID string) (*model.AppTransaction, error)

	// ListAppTransactionsByState returns up to limit transactions in the
	// given sync state (limit <= 0 means no limit).
	ListAppTransactionsByState(state model.SyncState, limit int) ([]*model.AppTransaction, error)

	// SyncStateStats returns the count of app transactions per sync state.
	SyncStateStats() (map[model.SyncState]int, error)
}

// CursorRepository handles the per-budget server-knowledge watermark.
type CursorRepository interface {
	// GetCursor returns the cursor for a budget, or ErrNotFound if no cycle
	// has completed yet.
	GetCursor(budgetID string) (*model.SyncCursor, error)

	// SaveCursor overwrites the stored watermark. Monotonicity is enforced
	// by the cursor manager, not here.
	SaveCursor(c *model.SyncCursor) error
}

// DetailStateRepository handles per-ledger-transaction detail states.
type DetailStateRepository interface {
	// GetDetailState returns the state for a ledger transaction id; the
	// boolean is false when the id has never been seen.
	GetDetailState(transactionID string) (model.DetailState, bool, error)

	// PutDetailState writes the state for a ledger transaction id.
	PutDetailState(transactionID string, state model.DetailState) error

	// CountDetailStates returns how many entries are in the given state.
	CountDetailStates(state model.DetailState) (int, error)
}
