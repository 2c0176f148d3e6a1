package sync

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"tms-sync/internal/domain"
)

// Scheduler submits a recurring sync job on a cron schedule. A single
// schedule covers the configured sync type with an unbounded date window;
// ad-hoc windowed runs go through the API or CLI.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	spec     string
	syncType domain.SyncType
	logger   *slog.Logger
}

// NewScheduler creates a scheduler. spec is a standard 5-field cron
// expression; an empty spec disables scheduling.
func NewScheduler(service *Service, spec string, syncType domain.SyncType, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		service:  service,
		spec:     spec,
		syncType: syncType,
		logger:   logger,
	}
}

// Start registers the schedule and begins firing. No-op when disabled.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		s.logger.Info("sync schedule disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		jobID, err := s.service.Submit(domain.SubmitRequest{SyncType: s.syncType})
		if err != nil {
			s.logger.Error("scheduled sync submission failed", "error", err)
			return
		}
		s.logger.Info("scheduled sync submitted", "job_id", jobID, "sync_type", s.syncType)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("sync schedule started", "schedule", s.spec, "sync_type", s.syncType)
	return nil
}

// Stop halts the cron loop. Jobs already submitted keep running on the pool.
func (s *Scheduler) Stop() {
	if s.spec == "" {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
}
