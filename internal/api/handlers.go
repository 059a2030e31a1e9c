package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/budgetlens/sync-backend/internal/application/service"
	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/ledger"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

func (s *Server) startSync(c *gin.Context) {
	var req StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svcReq := service.SyncRequest{
		BudgetID:             req.BudgetID,
		AccountID:            req.AccountID,
		OverrideDefaultLimit: req.OverrideDefaultLimit,
		Type:                 ledger.TransactionType(req.Type),
	}
	if req.SinceDate != "" {
		since, err := dates.Parse(req.SinceDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since_date: " + err.Error()})
			return
		}
		svcReq.Since = &since
	}

	jobID, err := s.syncService.StartSync(c.Request.Context(), svcReq)
	if err != nil {
		if strings.Contains(err.Error(), "already running") {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, StartSyncResponse{JobID: jobID})
}

func (s *Server) listSyncJobs(c *gin.Context) {
	var jobs []*service.SyncJob
	if c.Query("all") == "true" {
		jobs = s.syncService.ListAllSyncJobs()
	} else {
		jobs = s.syncService.ListActiveSyncJobs()
	}

	resp := make([]SyncJobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobToResponse(job))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getSyncJob(c *gin.Context) {
	job, err := s.syncService.GetSyncJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (s *Server) cancelSyncJob(c *gin.Context) {
	if err := s.syncService.CancelSync(c.Param("id")); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) getCursor(c *gin.Context) {
	budgetID := c.Param("budget")

	current, err := s.cursors.Current(budgetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cursor"})
		return
	}
	if current == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cursor for budget: " + budgetID})
		return
	}

	c.JSON(http.StatusOK, CursorResponse{
		BudgetID:        current.BudgetID,
		ServerKnowledge: current.ServerKnowledge,
	})
}

func (s *Server) resetCursor(c *gin.Context) {
	budgetID := c.Param("budget")

	var req ResetCursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.cursors.Persist(budgetID, req.ServerKnowledge, req.Force); err != nil {
		if syncerr.IsInvariantViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist cursor"})
		return
	}

	c.JSON(http.StatusOK, CursorResponse{
		BudgetID:        budgetID,
		ServerKnowledge: req.ServerKnowledge,
	})
}

func (s *Server) listTransactions(c *gin.Context) {
	state := model.SyncState(c.DefaultQuery("state", string(model.SyncNeedsSync)))
	if !state.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sync state: " + string(state)})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}

	txs, err := s.repo.ListAppTransactionsByState(state, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transactions"})
		return
	}

	resp := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, transactionToResponse(tx))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listOrders(c *gin.Context) {
	from, err := dates.Parse(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	to, err := dates.Parse(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}

	orders, err := s.repo.ListMerchantOrdersInWindow(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch orders"})
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, orderToResponse(o))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.repo.SyncStateStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
		return
	}

	resp := StatsResponse{SyncStates: make(map[string]int, len(stats))}
	for state, count := range stats {
		resp.SyncStates[string(state)] = count
		resp.Total += count
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getDetailState(c *gin.Context) {
	id := c.Param("id")

	state, seen, err := s.tracker.State(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch detail state"})
		return
	}
	if !seen {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction never seen: " + id})
		return
	}

	c.JSON(http.StatusOK, DetailStateResponse{TransactionID: id, State: string(state)})
}

func (s *Server) resetDetailState(c *gin.Context) {
	id := c.Param("id")

	if err := s.tracker.Reset(id); err != nil {
		if syncerr.IsInvariantViolation(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset detail state"})
		return
	}

	c.JSON(http.StatusOK, DetailStateResponse{
		TransactionID: id,
		State:         string(model.NeedDetails),
	})
}
