package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tms-sync/internal/domain"
)

// finalizeTimeout bounds sync log writes during job finalization, which must
// not inherit an already-cancelled job context.
const finalizeTimeout = 10 * time.Second

// Service orchestrates sync jobs: it accepts submissions, runs them on a
// bounded worker pool, tracks live state in the registry, and records
// durable history through the sync log repository.
type Service struct {
	registry    *Registry
	syncLog     domain.SyncLogRepository
	extractor   domain.Extractor
	transformer *Transformer
	loader      domain.Loader
	schema      domain.SchemaManager
	specs       map[domain.FactType]*domain.TableSpec
	logger      *slog.Logger

	queue   chan *domain.SyncJob
	workers int
	wg      gosync.WaitGroup
}

// NewService wires the sync service. queueSize bounds how many accepted jobs
// can wait for a worker; workers bounds concurrent executions.
func NewService(
	registry *Registry,
	syncLog domain.SyncLogRepository,
	extractor domain.Extractor,
	transformer *Transformer,
	loader domain.Loader,
	schema domain.SchemaManager,
	specs map[domain.FactType]*domain.TableSpec,
	workers, queueSize int,
	logger *slog.Logger,
) *Service {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Service{
		registry:    registry,
		syncLog:     syncLog,
		extractor:   extractor,
		transformer: transformer,
		loader:      loader,
		schema:      schema,
		specs:       specs,
		logger:      logger,
		queue:       make(chan *domain.SyncJob, queueSize),
		workers:     workers,
	}
}

// Start launches the worker pool. Workers drain the queue until Stop closes it.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			for job := range s.queue {
				s.executeJob(ctx, job)
			}
		}(i)
	}
	s.logger.Info("sync workers started", "workers", s.workers, "queue_size", cap(s.queue))
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (s *Service) Stop() {
	close(s.queue)
	s.wg.Wait()
	s.logger.Info("sync workers stopped")
}

// Submit validates the request, registers a PENDING job, and enqueues it.
// Returns the job id immediately; execution happens on the worker pool.
func (s *Service) Submit(req domain.SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	job := &domain.SyncJob{
		JobID:    uuid.New().String(),
		SyncType: req.SyncType,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Status:   domain.SyncStatusPending,
	}
	s.registry.Create(job)

	select {
	case s.queue <- job:
	default:
		// The caller never saw this id; leave no orphaned registry entry.
		s.registry.Delete(job.JobID)
		return "", domain.ErrQueueFull("job queue is full, retry later")
	}

	s.logger.Info("sync job accepted", "job_id", job.JobID, "sync_type", job.SyncType)
	return job.JobID, nil
}

// Run executes a sync synchronously and returns the finished job. Used by
// the CLI and the scheduler, bypassing the queue.
func (s *Service) Run(ctx context.Context, req domain.SubmitRequest) (domain.SyncJob, error) {
	if err := req.Validate(); err != nil {
		return domain.SyncJob{}, err
	}

	job := &domain.SyncJob{
		JobID:    uuid.New().String(),
		SyncType: req.SyncType,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Status:   domain.SyncStatusPending,
	}
	s.registry.Create(job)
	s.executeJob(ctx, job)
	return s.registry.Get(job.JobID)
}

// GetStatus returns the current snapshot of a job.
func (s *Service) GetStatus(jobID string) (domain.SyncJob, error) {
	return s.registry.Get(jobID)
}

// History lists persisted sync log entries, most recent first.
func (s *Service) History(ctx context.Context, filter domain.HistoryFilter) ([]domain.SyncLogEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = domain.DefaultHistoryLimit
	}
	return s.syncLog.ListHistory(ctx, filter)
}

// executeJob runs every fact pipeline the job's sync type covers. Pipelines
// for a "both" job run concurrently and independently: one failing does not
// cancel the other, and a job with any failed pipeline finishes FAILED.
func (s *Service) executeJob(ctx context.Context, job *domain.SyncJob) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("sync job panicked", "job_id", job.JobID, "panic", p)
			s.registry.Finish(job.JobID, domain.SyncStatusFailed, fmt.Sprintf("internal error: %v", p))
		}
	}()

	s.registry.MarkRunning(job.JobID)
	s.logger.Info("sync job started", "job_id", job.JobID, "sync_type", job.SyncType)

	window := domain.DateWindow{From: job.DateFrom, To: job.DateTo}
	facts := job.SyncType.FactTypes()

	errs := make([]error, len(facts))
	var g errgroup.Group
	for i, fact := range facts {
		g.Go(func() error {
			errs[i] = s.runFact(ctx, job.JobID, fact, window)
			return nil
		})
	}
	_ = g.Wait()

	var failures []string
	for i, err := range errs {
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", facts[i], err))
		}
	}

	if len(failures) > 0 {
		s.registry.Finish(job.JobID, domain.SyncStatusFailed, strings.Join(failures, "; "))
		s.logger.Error("sync job failed", "job_id", job.JobID, "error", strings.Join(failures, "; "))
		return
	}
	s.registry.Finish(job.JobID, domain.SyncStatusSuccess, "")
	s.logger.Info("sync job finished", "job_id", job.JobID)
}

// runFact replicates one fact table: ensure schema, extract, transform,
// load, while keeping the job registry and the sync log entry current.
// Every entry begun here is finalized, including on panic.
func (s *Service) runFact(ctx context.Context, jobID string, fact domain.FactType, window domain.DateWindow) (err error) {
	spec, ok := s.specs[fact]
	if !ok {
		return fmt.Errorf("no table spec for fact type %s", fact)
	}

	logID, logErr := s.syncLog.Begin(ctx, jobID, fact.SyncType())
	if logErr != nil {
		return fmt.Errorf("record sync start: %w", logErr)
	}

	var counts domain.SyncCounts
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pipeline panic: %v", p)
		}
		status := domain.SyncStatusSuccess
		var errMsg *string
		if err != nil {
			status = domain.SyncStatusFailed
			msg := err.Error()
			errMsg = &msg
		}
		// Fresh context: the job context may already be cancelled.
		fctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		if ferr := s.syncLog.Finish(fctx, logID, status, counts, errMsg); ferr != nil {
			s.logger.Error("finalize sync log entry failed", "job_id", jobID, "log_id", logID, "error", ferr)
		}
	}()

	if err = s.schema.EnsureTables(ctx); err != nil {
		return fmt.Errorf("ensure target tables: %w", err)
	}

	iter, err := s.extractor.Extract(ctx, spec, window)
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()

	for {
		raw, nextErr := iter.Next()
		if nextErr != nil {
			err = nextErr
			return err
		}
		if raw == nil {
			break
		}

		batch := make([]domain.FactRecord, 0, len(raw))
		var rejected int64
		for _, row := range raw {
			rec, terr := s.transformer.Transform(spec, row)
			if terr != nil {
				rejected++
				s.logger.Warn("row rejected", "job_id", jobID, "table", spec.Table, "error", terr)
				continue
			}
			batch = append(batch, rec)
		}

		inserted, updated, lerr := s.loader.Load(ctx, spec, batch)
		if lerr != nil {
			// Previously committed batches stay committed.
			counts = counts.Add(domain.SyncCounts{
				Total:  int64(len(raw)),
				Failed: int64(len(raw)),
			})
			s.registry.AddCounts(jobID, domain.SyncCounts{
				Total:  int64(len(raw)),
				Failed: int64(len(raw)),
			})
			err = lerr
			return err
		}

		batchCounts := domain.SyncCounts{
			Total:   int64(len(raw)),
			Success: inserted + updated,
			Failed:  rejected,
		}
		counts = counts.Add(batchCounts)
		s.registry.AddCounts(jobID, batchCounts)
	}

	s.logger.Info("fact pipeline complete", "job_id", jobID, "table", spec.Table,
		"total", counts.Total, "success", counts.Success, "failed", counts.Failed)
	return nil
}
