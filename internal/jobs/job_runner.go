package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentdesk-backend/internal/clock"
	"rentdesk-backend/internal/config"
	"rentdesk-backend/internal/domain"
	"rentdesk-backend/internal/logger"
	"rentdesk-backend/internal/service"
)

// Job names accepted by RunJob
const (
	JobApplyMonthlyPenalties   = "apply-monthly-penalties"
	JobRecalculateAllPenalties = "recalculate-all-penalties"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	penalties service.PenaltyService
	clock     clock.Clock
	config    *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(penalties service.PenaltyService, clk clock.Clock, cfg *config.Config) *JobRunner {
	return &JobRunner{
		penalties: penalties,
		clock:     clk,
		config:    cfg,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

func (jr *JobRunner) timeout() time.Duration {
	if s := jr.config.Penalty.JobTimeoutSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return 10 * time.Minute
}

// runWithRecovery wraps job execution with panic recovery and a deadline
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout())
	defer cancel()

	start := time.Now()
	logger.Info("Starting job", "job", jobName)
	if err := jobFunc(ctx); err != nil {
		if errors.Is(err, domain.ErrSweepInProgress) {
			logger.Warn("Job skipped, another instance holds the sweep lock", "job", jobName)
			return err
		}
		logger.Error("Job failed", "job", jobName, "duration", time.Since(start), "error", err)
		return err
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
	return nil
}

// ApplyMonthlyPenalties is the cron entry for the monthly sweep
func (jr *JobRunner) ApplyMonthlyPenalties() {
	_ = jr.runApplyMonthlyPenalties()
}

// RecalculateAllPenalties is the cron entry for the recalculation sweep
func (jr *JobRunner) RecalculateAllPenalties() {
	_ = jr.runRecalculateAllPenalties()
}

func (jr *JobRunner) runApplyMonthlyPenalties() error {
	return jr.runWithRecovery("ApplyMonthlyPenalties", func(ctx context.Context) error {
		res, err := jr.penalties.ApplyMonthlyPenalties(ctx, jr.clock.Now())
		if err != nil {
			return err
		}
		logger.Info("Monthly penalties applied",
			"runID", res.RunID,
			"applied", res.PenaltiesApplied,
			"total", res.TotalPenaltyAmount.String(),
			"failed", res.FailedBills)
		return nil
	})
}

func (jr *JobRunner) runRecalculateAllPenalties() error {
	return jr.runWithRecovery("RecalculateAllPenalties", func(ctx context.Context) error {
		res, err := jr.penalties.RecalculateAllPenalties(ctx, jr.clock.Now())
		if err != nil {
			return err
		}
		logger.Info("Penalties recalculated",
			"runID", res.RunID,
			"recalculated", res.Recalculated,
			"correction", res.TotalPenaltyCorrection.String(),
			"failed", res.FailedBills)
		return nil
	})
}

// RunJob runs a single job by name (for manual execution)
func (jr *JobRunner) RunJob(name string) error {
	switch name {
	case JobApplyMonthlyPenalties:
		return jr.runApplyMonthlyPenalties()
	case JobRecalculateAllPenalties:
		return jr.runRecalculateAllPenalties()
	default:
		return fmt.Errorf("unknown job %q", name)
	}
}
