// Package service manages asynchronous sync jobs on top of the cycle
// orchestrator.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	appsync "github.com/budgetlens/sync-backend/internal/application/sync"
	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/ledger"
)

// SyncStatus represents the current state of a sync job.
type SyncStatus string

const (
	StatusPending   SyncStatus = "pending"
	StatusRunning   SyncStatus = "running"
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
	StatusCancelled SyncStatus = "cancelled"
)

// Job staleness thresholds
const (
	// DefaultJobStaleThreshold is how long a job can go without progress updates
	// before being considered stale. Jobs that don't update progress for this
	// duration are assumed to be hung or crashed.
	DefaultJobStaleThreshold = 30 * time.Minute

	// DefaultJobMaxDuration is the maximum time a job can run before being
	// forcefully marked as failed. This prevents runaway jobs.
	DefaultJobMaxDuration = 2 * time.Hour
)

// SyncRequest holds parameters for starting a sync.
type SyncRequest struct {
	BudgetID             string
	AccountID            string
	Since                *dates.Date
	OverrideDefaultLimit bool
	Type                 ledger.TransactionType
}

// SyncProgress holds real-time progress information.
type SyncProgress struct {
	CurrentPhase string // "pending", "running", "completed", "failed", "cancelled"
	LastUpdate   time.Time
}

// SyncJob represents a running or completed sync job.
type SyncJob struct {
	ID          string
	BudgetID    string
	Status      SyncStatus
	Request     SyncRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    SyncProgress
	Result      *appsync.Result
	Error       error
	cancelFunc  context.CancelFunc
}

// SyncService manages sync operations.
type SyncService struct {
	orchestrator *appsync.Orchestrator
	logger       *slog.Logger

	// Job management
	jobs      map[string]*SyncJob
	jobsMutex sync.RWMutex

	// Budget-level locking (only one sync per budget at a time). The value
	// is the owning job id so a stale sweep cannot release a lock a newer
	// job has since taken.
	runningBudgets map[string]string
	locksMutex     sync.Mutex

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewSyncService creates a new sync service.
func NewSyncService(orchestrator *appsync.Orchestrator, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		orchestrator:   orchestrator,
		logger:         logger,
		jobs:           make(map[string]*SyncJob),
		runningBudgets: make(map[string]string),
	}
}

// StartSync starts a new sync job asynchronously.
// Note: The passed context is NOT used as the parent for the background job.
// Background sync jobs use context.Background() to avoid being cancelled when
// the HTTP request completes. Use CancelSync() to cancel a running job.
func (s *SyncService) StartSync(_ context.Context, req SyncRequest) (string, error) {
	if req.BudgetID == "" {
		return "", fmt.Errorf("budget id is required")
	}

	jobID := uuid.NewString()

	// Check if the budget is already running a sync
	if !s.tryLockBudget(req.BudgetID, jobID) {
		return "", fmt.Errorf("sync already running for budget: %s", req.BudgetID)
	}

	// Create cancellable context from Background - NOT from the request context.
	// This prevents the job from being cancelled when the HTTP request completes.
	jobCtx, cancel := context.WithCancel(context.Background())

	job := &SyncJob{
		ID:         jobID,
		BudgetID:   req.BudgetID,
		Status:     StatusPending,
		Request:    req,
		StartedAt:  time.Now(),
		cancelFunc: cancel,
		Progress:   SyncProgress{CurrentPhase: "pending", LastUpdate: time.Now()},
	}

	s.jobsMutex.Lock()
	s.jobs[jobID] = job
	s.jobsMutex.Unlock()

	go s.runSyncJob(jobCtx, job)

	s.logger.Info("sync job started",
		"job_id", jobID,
		"budget_id", req.BudgetID,
		"account_id", req.AccountID,
	)

	return jobID, nil
}

// GetSyncJob retrieves a sync job by ID.
func (s *SyncService) GetSyncJob(jobID string) (*SyncJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	return job, nil
}

// ListActiveSyncJobs returns all running or pending jobs.
func (s *SyncService) ListActiveSyncJobs() []*SyncJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	var active []*SyncJob
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			active = append(active, job)
		}
	}
	return active
}

// ListAllSyncJobs returns all jobs (for debugging/monitoring).
func (s *SyncService) ListAllSyncJobs() []*SyncJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelSync cancels a running sync job.
func (s *SyncService) CancelSync(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if job.Status != StatusPending && job.Status != StatusRunning {
		return fmt.Errorf("job cannot be cancelled: status=%s", job.Status)
	}

	job.cancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	job.Progress.CurrentPhase = "cancelled"
	job.Progress.LastUpdate = now

	s.logger.Info("sync job cancelled", "job_id", jobID)
	return nil
}

// runSyncJob executes the sync job in a background goroutine.
func (s *SyncService) runSyncJob(ctx context.Context, job *SyncJob) {
	defer s.unlockBudget(job.BudgetID, job.ID)

	s.updateJobStatus(job.ID, StatusRunning, SyncProgress{
		CurrentPhase: "running",
		LastUpdate:   time.Now(),
	})

	result, err := s.orchestrator.RunCycle(ctx, job.BudgetID, appsync.Options{
		AccountID:            job.Request.AccountID,
		Since:                job.Request.Since,
		OverrideDefaultLimit: job.Request.OverrideDefaultLimit,
		Type:                 job.Request.Type,
	})

	if err != nil {
		if ctx.Err() == context.Canceled {
			// Already marked as cancelled in CancelSync
			return
		}
		s.failJob(job.ID, err)
		return
	}

	s.completeJob(job.ID, result)
}

// updateJobStatus updates a job's status and progress.
func (s *SyncService) updateJobStatus(jobID string, status SyncStatus, progress SyncProgress) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		job.Status = status
		job.Progress = progress
	}
}

// completeJob marks a job as completed with results.
func (s *SyncService) completeJob(jobID string, result *appsync.Result) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		now := time.Now()
		job.Status = StatusCompleted
		job.CompletedAt = &now
		job.Result = result
		job.Progress.CurrentPhase = "completed"
		job.Progress.LastUpdate = now
		s.logger.Info("sync job completed",
			"job_id", jobID,
			"fetched", result.Fetched,
			"discovered", result.Discovered,
			"matched", result.Matched,
			"ambiguous", result.Ambiguous,
		)
	}
}

// failJob marks a job as failed with an error.
func (s *SyncService) failJob(jobID string, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		now := time.Now()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = err
		job.Progress = SyncProgress{
			CurrentPhase: "failed",
			LastUpdate:   now,
		}
		s.logger.Error("sync job failed", "job_id", jobID, "error", err)
	}
}

// tryLockBudget attempts to claim a budget for a job.
func (s *SyncService) tryLockBudget(budgetID, jobID string) bool {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if _, exists := s.runningBudgets[budgetID]; exists {
		return false
	}
	s.runningBudgets[budgetID] = jobID
	return true
}

// unlockBudget releases a budget claim if the job still owns it.
func (s *SyncService) unlockBudget(budgetID, jobID string) {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if owner, exists := s.runningBudgets[budgetID]; exists && owner == jobID {
		delete(s.runningBudgets, budgetID)
	}
}

// CleanupOldJobs removes completed jobs older than the specified duration.
func (s *SyncService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, job := range s.jobs {
		// Only remove completed jobs
		if job.Status == StatusCompleted || job.Status == StatusFailed || job.Status == StatusCancelled {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old sync jobs", "removed", removed)
	}

	return removed
}

// MarkStaleJobsAsFailed finds jobs that appear to be stuck and marks them as failed.
// A job is considered stale if:
// 1. It has been running longer than maxDuration, OR
// 2. Its Progress.LastUpdate is older than staleThreshold
//
// This handles cases where:
// - The goroutine panicked and never updated the job status
// - The job is genuinely stuck (infinite loop, deadlock, etc.)
// - The server restarted and orphaned in-memory job state
func (s *SyncService) MarkStaleJobsAsFailed(staleThreshold, maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	marked := 0

	for id, job := range s.jobs {
		// Only check running or pending jobs
		if job.Status != StatusRunning && job.Status != StatusPending {
			continue
		}

		isStale := false
		reason := ""

		// Check if job has exceeded max duration
		if now.Sub(job.StartedAt) > maxDuration {
			isStale = true
			reason = fmt.Sprintf("exceeded max duration of %v (started %v ago)", maxDuration, now.Sub(job.StartedAt).Round(time.Second))
		}

		// Check if progress hasn't been updated recently
		if !isStale && now.Sub(job.Progress.LastUpdate) > staleThreshold {
			isStale = true
			reason = fmt.Sprintf("no progress update for %v (threshold: %v)", now.Sub(job.Progress.LastUpdate).Round(time.Second), staleThreshold)
		}

		if isStale {
			// Cancel the context if it exists (in case goroutine is still running)
			if job.cancelFunc != nil {
				job.cancelFunc()
			}

			job.Status = StatusFailed
			job.CompletedAt = &now
			job.Error = fmt.Errorf("job marked as stale: %s", reason)
			job.Progress.CurrentPhase = "failed"
			job.Progress.LastUpdate = now

			// Release the budget lock
			s.releaseBudgetLockUnsafe(job.BudgetID, id)

			s.logger.Warn("marked stale job as failed",
				"job_id", id,
				"budget_id", job.BudgetID,
				"reason", reason,
				"started_at", job.StartedAt,
				"last_update", job.Progress.LastUpdate,
			)

			marked++
		}
	}

	return marked
}

// releaseBudgetLockUnsafe releases a budget claim while jobsMutex is held.
func (s *SyncService) releaseBudgetLockUnsafe(budgetID, jobID string) {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if owner, exists := s.runningBudgets[budgetID]; exists && owner == jobID {
		delete(s.runningBudgets, budgetID)
	}
}

// IsJobStale checks if a specific job is considered stale.
func (s *SyncService) IsJobStale(jobID string, staleThreshold, maxDuration time.Duration) bool {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false
	}

	if job.Status != StatusRunning && job.Status != StatusPending {
		return false
	}

	now := time.Now()
	return now.Sub(job.StartedAt) > maxDuration || now.Sub(job.Progress.LastUpdate) > staleThreshold
}

// StartBackgroundCleanup starts a background goroutine that periodically:
// 1. Marks stale jobs as failed
// 2. Cleans up old completed jobs
//
// The cleanup runs every checkInterval. Call StopBackgroundCleanup to stop it.
func (s *SyncService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		s.logger.Info("background job cleanup started",
			"check_interval", checkInterval,
			"stale_threshold", DefaultJobStaleThreshold,
			"max_duration", DefaultJobMaxDuration,
		)

		for {
			select {
			case <-s.cleanupStop:
				s.logger.Info("background job cleanup stopped")
				return
			case <-ticker.C:
				staleMarked := s.MarkStaleJobsAsFailed(DefaultJobStaleThreshold, DefaultJobMaxDuration)
				if staleMarked > 0 {
					s.logger.Info("marked stale jobs as failed", "count", staleMarked)
				}

				// Clean up old completed jobs (keep for 24 hours)
				cleaned := s.CleanupOldJobs(24 * time.Hour)
				if cleaned > 0 {
					s.logger.Debug("cleaned up old jobs", "count", cleaned)
				}
			}
		}
	}()
}

// StopBackgroundCleanup stops the background cleanup goroutine.
// This method blocks until the cleanup goroutine has fully stopped.
func (s *SyncService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}

	close(s.cleanupStop)
	<-s.cleanupDone
}
