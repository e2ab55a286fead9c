package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"rentdesk-backend/internal/jobs"
	"rentdesk-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	cfg := s.jobs.Config().Scheduler

	// Monthly late fee sweep
	_, err := s.cron.AddFunc(cfg.ApplyMonthlyPenalties, s.jobs.ApplyMonthlyPenalties)
	if err != nil {
		logger.Error("Failed to register ApplyMonthlyPenalties job", "schedule", cfg.ApplyMonthlyPenalties, "error", err)
	}

	// Weekly repair of drifted penalties
	_, err = s.cron.AddFunc(cfg.RecalculateAllPenalties, s.jobs.RecalculateAllPenalties)
	if err != nil {
		logger.Error("Failed to register RecalculateAllPenalties job", "schedule", cfg.RecalculateAllPenalties, "error", err)
	}

	logger.Info("Cron jobs registered", "count", len(s.cron.Entries()))
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Next returns the next activation time of every registered job
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		next = append(next, s.cron.Entry(e.ID).Schedule.Next(time.Now().UTC()))
	}
	return next
}
