package api

import (
	"time"

	"github.com/budgetlens/sync-backend/internal/application/service"
	"github.com/budgetlens/sync-backend/internal/domain/model"
)

// StartSyncRequest starts a sync cycle for a budget.
type StartSyncRequest struct {
	BudgetID             string `json:"budget_id" binding:"required"`
	AccountID            string `json:"account_id"`
	SinceDate            string `json:"since_date"`
	OverrideDefaultLimit bool   `json:"override_default_limit"`
	Type                 string `json:"type"`
}

// StartSyncResponse carries the id of the job that was started.
type StartSyncResponse struct {
	JobID string `json:"job_id"`
}

// SyncJobResponse is the wire form of a sync job.
type SyncJobResponse struct {
	ID          string              `json:"id"`
	BudgetID    string              `json:"budget_id"`
	Status      string              `json:"status"`
	Phase       string              `json:"phase"`
	StartedAt   string              `json:"started_at"`
	CompletedAt string              `json:"completed_at,omitempty"`
	Result      *CycleResultPayload `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// CycleResultPayload is the wire form of a completed cycle's counts.
type CycleResultPayload struct {
	Fetched         int   `json:"fetched"`
	SkippedDeleted  int   `json:"skipped_deleted"`
	Discovered      int   `json:"discovered"`
	Matched         int   `json:"matched"`
	Linked          int   `json:"linked"`
	NoCandidate     int   `json:"no_candidate"`
	Ambiguous       int   `json:"ambiguous"`
	ServerKnowledge int64 `json:"server_knowledge"`
	CursorAdvanced  bool  `json:"cursor_advanced"`
}

// CursorResponse is the wire form of a budget's watermark.
type CursorResponse struct {
	BudgetID        string `json:"budget_id"`
	ServerKnowledge int64  `json:"server_knowledge"`
}

// ResetCursorRequest overwrites a budget's watermark.
type ResetCursorRequest struct {
	ServerKnowledge int64 `json:"server_knowledge"`
	Force           bool  `json:"force"`
}

// TransactionResponse is the wire form of an app transaction.
type TransactionResponse struct {
	ID                    string `json:"id"`
	AppTransactionID      string `json:"app_transaction_id"`
	AccountID             string `json:"account_id"`
	LedgerTransactionID   string `json:"ledger_transaction_id,omitempty"`
	MerchantTransactionID string `json:"merchant_transaction_id,omitempty"`
	PostDate              string `json:"post_date"`
	AmountMills           int64  `json:"amount_mills"`
	SyncState             string `json:"sync_state"`
}

// OrderResponse is the wire form of a merchant order.
type OrderResponse struct {
	ID          string `json:"id"`
	MerchantID  string `json:"merchant_id"`
	OrderID     string `json:"order_id"`
	OrderDate   string `json:"order_date"`
	AmountMills int64  `json:"amount_mills"`
}

// DetailStateResponse is the wire form of a detail-state entry.
type DetailStateResponse struct {
	TransactionID string `json:"transaction_id"`
	State         string `json:"state"`
}

// StatsResponse summarizes sync states across all app transactions.
type StatsResponse struct {
	SyncStates map[string]int `json:"sync_states"`
	Total      int            `json:"total"`
}

func jobToResponse(job *service.SyncJob) SyncJobResponse {
	resp := SyncJobResponse{
		ID:        job.ID,
		BudgetID:  job.BudgetID,
		Status:    string(job.Status),
		Phase:     job.Progress.CurrentPhase,
		StartedAt: job.StartedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	if job.Result != nil {
		resp.Result = &CycleResultPayload{
			Fetched:         job.Result.Fetched,
			SkippedDeleted:  job.Result.SkippedDeleted,
			Discovered:      job.Result.Discovered,
			Matched:         job.Result.Matched,
			Linked:          job.Result.Linked,
			NoCandidate:     job.Result.NoCandidate,
			Ambiguous:       job.Result.Ambiguous,
			ServerKnowledge: job.Result.ServerKnowledge,
			CursorAdvanced:  job.Result.CursorAdvanced,
		}
	}
	if job.Error != nil {
		resp.Error = job.Error.Error()
	}
	return resp
}

func transactionToResponse(tx *model.AppTransaction) TransactionResponse {
	return TransactionResponse{
		ID:                    tx.ID,
		AppTransactionID:      tx.AppTransactionID,
		AccountID:             tx.AccountID,
		LedgerTransactionID:   tx.LedgerTransactionID,
		MerchantTransactionID: tx.MerchantTransactionID,
		PostDate:              tx.PostDate.String(),
		AmountMills:           tx.AmountMills,
		SyncState:             string(tx.SyncState),
	}
}

func orderToResponse(o *model.MerchantOrder) OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		MerchantID:  o.MerchantID,
		OrderID:     o.OrderID,
		OrderDate:   o.OrderDate.String(),
		AmountMills: o.AmountMills,
	}
}
