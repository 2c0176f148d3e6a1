package sync

import (
	gosync "sync"
	"time"

	"tms-sync/internal/domain"
)

// Registry is the in-memory job table. Entries live for the process
// lifetime; durable history belongs to the sync log repository.
type Registry struct {
	mu   gosync.RWMutex
	jobs map[string]*domain.SyncJob
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*domain.SyncJob)}
}

// Create records a newly accepted job in PENDING state.
func (r *Registry) Create(job *domain.SyncJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job
}

// Get returns a snapshot of the job so callers never observe a record
// mutating under them.
func (r *Registry) Get(jobID string) (domain.SyncJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return domain.SyncJob{}, domain.ErrNotFound("job %s not found", jobID)
	}
	return *job, nil
}

// Delete removes a job that was never handed to a caller or a worker.
func (r *Registry) Delete(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// MarkRunning transitions a pending job to RUNNING and stamps its start.
func (r *Registry) MarkRunning(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status != domain.SyncStatusPending {
		return
	}
	job.Status = domain.SyncStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
}

// AddCounts folds a processed batch into the job's running totals.
func (r *Registry) AddCounts(jobID string, counts domain.SyncCounts) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return
	}
	job.Counts = job.Counts.Add(counts)
}

// Finish moves the job to a terminal state. Terminal states are sticky:
// a second Finish on the same job is a no-op.
func (r *Registry) Finish(jobID string, status string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return
	}
	if job.Status == domain.SyncStatusSuccess || job.Status == domain.SyncStatusFailed {
		return
	}
	job.Status = status
	job.Error = errMsg
	now := time.Now().UTC()
	job.FinishedAt = &now
}
