// Package ledger talks to the external personal-ledger service's
// transaction feed.
package ledger

import (
	"context"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
)

// TransactionType filters the feed server-side.
type TransactionType string

const (
	TypeAll           TransactionType = ""
	TypeUncategorized TransactionType = "uncategorized"
	TypeUnapproved    TransactionType = "unapproved"
)

// Page is one page of the transaction feed plus the knowledge watermark the
// server issued for it.
type Page struct {
	Transactions    []model.LedgerTransaction
	ServerKnowledge int64
}

// Client fetches pages of external ledger transactions.
//
// Implementations must be idempotent for identical inputs: the orchestrator
// recovers from a failed cycle by re-fetching the same page.
type Client interface {
	// FetchTransactions returns the transactions changed since the given
	// bounds. since and lastKnownCursor are both optional; when a cursor is
	// present the server returns only deltas after it.
	FetchTransactions(ctx context.Context, budgetID string, since *dates.Date,
		txType TransactionType, lastKnownCursor *int64) (*Page, error)
}
