// Package model defines the persisted entities of the reconciliation engine
// and the closed state sets that govern them.
package model

import (
	"fmt"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

// SchemaVersion is the current persisted-entity format version. Entities read
// back with a newer version are a fatal compatibility error; migration of
// older versions happens in storage, not here.
const SchemaVersion = 1

// CheckSchemaVersion validates a stored entity's schema version against the
// version this build understands.
func CheckSchemaVersion(kind, key string, stored int) error {
	if stored > SchemaVersion {
		return syncerr.InvariantViolation(kind, key,
			fmt.Sprintf("schema version %d is newer than supported version %d", stored, SchemaVersion))
	}
	return nil
}

// SyncCursor is the per-budget server-knowledge watermark. ServerKnowledge
// only advances across successful cycles; see cursor.Manager.
type SyncCursor struct {
	SchemaVersion   int
	BudgetID        string
	ServerKnowledge int64
}

// LedgerTransaction is one transaction from the external ledger feed.
// The engine treats these as read-only; they are never persisted as-is.
type LedgerTransaction struct {
	ID                    string     `json:"id"`
	AccountID             string     `json:"account_id"`
	MerchantTransactionID string     `json:"merchant_transaction_id,omitempty"`
	PostDate              dates.Date `json:"date"`
	AmountMills           int64      `json:"amount"`
	Deleted               bool       `json:"deleted"`
}

// BankTransaction is the financial institution's record of a purchase.
// (AccountID, BankTransactionID) is unique. OrderID is a weak reference to
// the MerchantOrder it was reconciled against; it carries no ownership.
type BankTransaction struct {
	SchemaVersion     int
	ID                string
	AccountID         string
	OrderID           string // empty until linked
	BankTransactionID string // external natural key
	PostDate          dates.Date
	AmountMills       int64
}

// MerchantOrder is the merchant's record of a purchase.
// (MerchantID, OrderID) is unique.
type MerchantOrder struct {
	SchemaVersion int
	ID            string
	MerchantID    string
	OrderID       string // external natural key
	OrderDate     dates.Date
	AmountMills   int64
}

// AppTransaction bridges a ledger transaction to its bank/merchant evidence.
// Created and updated exclusively by the reconciliation engine.
type AppTransaction struct {
	SchemaVersion         int
	ID                    string
	ApplicationID         string
	AccountID             string
	LedgerTransactionID   string // assigned once reconciled
	AppAccountID          string
	AppTransactionID      string // natural key
	MerchantTransactionID string
	PostDate              dates.Date
	AmountMills           int64
	SyncState             SyncState
}
