package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rentdesk-backend/internal/domain"
	"rentdesk-backend/internal/logger"
	"rentdesk-backend/internal/metrics"
	"rentdesk-backend/internal/penalty"
	"rentdesk-backend/internal/repository"
)

const (
	sweepApply       = "apply"
	sweepRecalculate = "recalculate"

	// maxWriteAttempts bounds the reload-and-recompute loop on version conflicts
	maxWriteAttempts = 3
)

type penaltyService struct {
	billRepo   repository.BillRepository
	engine     *penalty.Engine
	dispatcher Dispatcher
	locker     SweepLocker
	lockTTL    time.Duration
}

type PenaltyOption func(*penaltyService)

// WithSweepLock makes sweeps exclusive across processes
func WithSweepLock(locker SweepLocker, ttl time.Duration) PenaltyOption {
	return func(s *penaltyService) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

func NewPenaltyService(billRepo repository.BillRepository, engine *penalty.Engine, dispatcher Dispatcher, opts ...PenaltyOption) PenaltyService {
	s := &penaltyService{
		billRepo:   billRepo,
		engine:     engine,
		dispatcher: dispatcher,
		lockTTL:    15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *penaltyService) ApplyToBill(ctx context.Context, billID int32, now time.Time) (*domain.ApplyResult, error) {
	logger.EnterMethod("penaltyService.ApplyToBill", "billID", billID, "now", now)

	var out penalty.Outcome
	bill, err := s.loadAndWrite(ctx, billID, func(b *domain.Bill) (bool, error) {
		out = s.engine.Apply(b, now)
		return out.Modified, nil
	})
	if err != nil {
		logger.ExitMethodWithError("penaltyService.ApplyToBill", err, "billID", billID)
		return nil, err
	}

	s.checkBase(bill.ID, out.BaseSource, out.BaseAmount)
	if out.Changed {
		metrics.AddPenaltyApplied(sweepApply, out.Amount.InexactFloat64())
		logger.WithBill(bill.ID).Info("Penalty applied", "amount", out.Amount.String(), "days", out.Days)
	}
	s.dispatchLateFee(ctx, out.Event)

	logger.ExitMethod("penaltyService.ApplyToBill", "billID", billID, "applied", out.Applied, "reason", out.Reason)
	return &domain.ApplyResult{
		Applied: out.Applied,
		Amount:  out.Amount,
		Days:    out.Days,
		Reason:  out.Reason,
		Bill:    bill.Summary(),
	}, nil
}

func (s *penaltyService) ApplyMonthlyPenalties(ctx context.Context, now time.Time) (*domain.SweepResult, error) {
	runID := uuid.NewString()
	log := logger.WithSweep(sweepApply, runID)

	release, err := s.acquire(ctx, sweepApply)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	bills, err := s.billRepo.ListForPenalty(ctx, domain.BillFilter{
		Statuses:  domain.PenaltyEligibleStatuses,
		DueBefore: now,
	})
	if err != nil {
		metrics.ObserveSweep(sweepApply, metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("list bills for penalty sweep: %w", err)
	}
	log.Info("Starting monthly penalty sweep", "candidates", len(bills), "now", now)

	result := &domain.SweepResult{
		RunID:              runID,
		TotalPenaltyAmount: decimal.Zero,
		ProcessedBills:     make([]domain.ProcessedBill, 0, len(bills)),
	}

	for i := range bills {
		if err := ctx.Err(); err != nil {
			log.Warn("Penalty sweep interrupted", "processed", i, "remaining", len(bills)-i, "error", err)
			metrics.ObserveSweep(sweepApply, metrics.ResultError, time.Since(start))
			return result, fmt.Errorf("penalty sweep interrupted: %w", err)
		}

		candidate := bills[i]
		line := domain.ProcessedBill{BillID: candidate.ID, BillNumber: candidate.BillNumber, Amount: decimal.Zero}

		var out penalty.Outcome
		bill, err := s.writeWithRetry(ctx, &candidate, func(b *domain.Bill) (bool, error) {
			out = s.engine.Apply(b, now)
			return out.Modified, nil
		})
		if err != nil {
			log.Error("Failed to apply penalty", "billID", candidate.ID, "error", err)
			line.Error = err.Error()
			result.FailedBills++
			result.ProcessedBills = append(result.ProcessedBills, line)
			continue
		}

		s.checkBase(bill.ID, out.BaseSource, out.BaseAmount)
		line.Applied = out.Applied && out.Changed
		line.Amount = out.Amount
		line.Days = out.Days
		line.Reason = out.Reason
		result.ProcessedBills = append(result.ProcessedBills, line)

		if line.Applied {
			result.PenaltiesApplied++
			result.TotalPenaltyAmount = result.TotalPenaltyAmount.Add(out.Amount)
			metrics.AddPenaltyApplied("sweep", out.Amount.InexactFloat64())
		}
		s.dispatchLateFee(ctx, out.Event)
	}

	if result.PenaltiesApplied > 0 && s.dispatcher != nil {
		s.dispatcher.PenaltiesApplied(ctx, domain.SweepEvent{
			ID:                 uuid.NewString(),
			Type:               domain.SweepEventTypePenaltiesApplied,
			RunID:              runID,
			PenaltiesApplied:   result.PenaltiesApplied,
			TotalPenaltyAmount: result.TotalPenaltyAmount,
			ReferenceNow:       now,
		})
	}

	metrics.ObserveSweep(sweepApply, metrics.ResultSuccess, time.Since(start))
	log.Info("Monthly penalty sweep finished",
		"applied", result.PenaltiesApplied,
		"total", result.TotalPenaltyAmount.String(),
		"failed", result.FailedBills,
		"duration", time.Since(start))
	return result, nil
}

func (s *penaltyService) PreviewPenalty(ctx context.Context, billID int32, now time.Time) (*domain.PenaltyPreview, error) {
	bill, err := s.billRepo.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	a := s.engine.Assess(bill, now)
	s.checkBase(bill.ID, a.BaseSource, a.BaseAmount)

	preview := &domain.PenaltyPreview{
		BillID:         bill.ID,
		ReferenceNow:   now,
		Strategy:       string(s.engine.Policy().Strategy),
		ShouldApply:    a.ShouldApply && !bill.Status.IsTerminal(),
		Amount:         decimal.Zero,
		Days:           a.Days,
		BaseAmount:     a.BaseAmount,
		BaseSource:     a.BaseSource,
		CurrentPenalty: bill.Penalty.Amount,
		ProjectedTotal: bill.TotalAmount,
	}
	if preview.ShouldApply {
		preview.Amount = a.Amount
		preview.ProjectedTotal = a.BaseAmount.Add(a.Amount)
	}
	return preview, nil
}

func (s *penaltyService) AdjustPenalty(ctx context.Context, billID int32, delta decimal.Decimal, now time.Time) (*domain.AdjustResult, error) {
	logger.EnterMethod("penaltyService.AdjustPenalty", "billID", billID, "delta", delta.String())

	var adj penalty.AdjustOutcome
	bill, err := s.loadAndWrite(ctx, billID, func(b *domain.Bill) (bool, error) {
		o, err := penalty.Adjust(b, delta, now)
		if err != nil {
			return false, err
		}
		adj = o
		return !o.NewPenalty.Equal(o.PreviousPenalty), nil
	})
	if err != nil {
		logger.ExitMethodWithError("penaltyService.AdjustPenalty", err, "billID", billID)
		return nil, err
	}

	metrics.AddPenaltyAdjustment("adjust", adj.NewPenalty.Sub(adj.PreviousPenalty).InexactFloat64())
	logger.WithBill(bill.ID).Info("Penalty adjusted",
		"previous", adj.PreviousPenalty.String(),
		"new", adj.NewPenalty.String(),
		"total", adj.TotalAmount.String())

	logger.ExitMethod("penaltyService.AdjustPenalty", "billID", billID)
	return &domain.AdjustResult{
		BillID:          bill.ID,
		PreviousPenalty: adj.PreviousPenalty,
		NewPenalty:      adj.NewPenalty,
		TotalAmount:     bill.TotalAmount,
		RemainingAmount: bill.RemainingAmount,
	}, nil
}

func (s *penaltyService) RemovePenalty(ctx context.Context, billID int32, now time.Time) (*domain.AdjustResult, error) {
	var adj penalty.AdjustOutcome
	bill, err := s.loadAndWrite(ctx, billID, func(b *domain.Bill) (bool, error) {
		o, err := penalty.Adjust(b, b.Penalty.Amount.Neg(), now)
		if err != nil {
			return false, err
		}
		adj = o
		return !o.NewPenalty.Equal(o.PreviousPenalty), nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddPenaltyAdjustment("remove", adj.NewPenalty.Sub(adj.PreviousPenalty).InexactFloat64())
	logger.WithBill(bill.ID).Info("Penalty removed", "previous", adj.PreviousPenalty.String())
	return &domain.AdjustResult{
		BillID:          bill.ID,
		PreviousPenalty: adj.PreviousPenalty,
		NewPenalty:      adj.NewPenalty,
		TotalAmount:     bill.TotalAmount,
		RemainingAmount: bill.RemainingAmount,
	}, nil
}

func (s *penaltyService) RecalculateAllPenalties(ctx context.Context, now time.Time) (*domain.RecalculationResult, error) {
	runID := uuid.NewString()
	log := logger.WithSweep(sweepRecalculate, runID)

	release, err := s.acquire(ctx, sweepRecalculate)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	bills, err := s.billRepo.ListForPenalty(ctx, domain.BillFilter{
		Statuses:  domain.PenaltyEligibleStatuses,
		DueBefore: now,
	})
	if err != nil {
		metrics.ObserveSweep(sweepRecalculate, metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("list bills for recalculation: %w", err)
	}
	log.Info("Starting penalty recalculation", "candidates", len(bills), "now", now)

	result := &domain.RecalculationResult{
		RunID:                  runID,
		TotalPenaltyCorrection: decimal.Zero,
		ProcessedBills:         make([]domain.RecalculatedBill, 0, len(bills)),
	}

	for i := range bills {
		if err := ctx.Err(); err != nil {
			log.Warn("Penalty recalculation interrupted", "processed", i, "remaining", len(bills)-i, "error", err)
			metrics.ObserveSweep(sweepRecalculate, metrics.ResultError, time.Since(start))
			return result, fmt.Errorf("penalty recalculation interrupted: %w", err)
		}

		candidate := bills[i]
		var r penalty.Reconciliation
		bill, err := s.writeWithRetry(ctx, &candidate, func(b *domain.Bill) (bool, error) {
			r = s.engine.Reconcile(b, now)
			if r.NeedsRewrite {
				s.engine.Rewrite(b, r, now)
			}
			return r.NeedsRewrite, nil
		})
		if err != nil {
			log.Error("Failed to recalculate penalty", "billID", candidate.ID, "error", err)
			result.FailedBills++
			result.ProcessedBills = append(result.ProcessedBills, domain.RecalculatedBill{
				BillID:          candidate.ID,
				BillNumber:      candidate.BillNumber,
				PreviousPenalty: candidate.Penalty.Amount,
				CorrectPenalty:  decimal.Zero,
				Correction:      decimal.Zero,
				Error:           err.Error(),
			})
			continue
		}

		s.checkBase(bill.ID, r.BaseSource, r.BaseAmount)
		result.ProcessedBills = append(result.ProcessedBills, domain.RecalculatedBill{
			BillID:          bill.ID,
			BillNumber:      bill.BillNumber,
			PreviousPenalty: r.StoredPenalty,
			CorrectPenalty:  r.Amount,
			Correction:      r.Correction,
			Rewritten:       r.NeedsRewrite,
		})

		if r.NeedsRewrite {
			result.Recalculated++
			result.TotalPenaltyCorrection = result.TotalPenaltyCorrection.Add(r.Correction)
			metrics.AddPenaltyAdjustment(sweepRecalculate, r.Correction.InexactFloat64())
			log.Info("Penalty corrected",
				"billID", bill.ID,
				"previous", r.StoredPenalty.String(),
				"correct", r.Amount.String())
		}
	}

	metrics.ObserveSweep(sweepRecalculate, metrics.ResultSuccess, time.Since(start))
	log.Info("Penalty recalculation finished",
		"recalculated", result.Recalculated,
		"correction", result.TotalPenaltyCorrection.String(),
		"failed", result.FailedBills,
		"duration", time.Since(start))
	return result, nil
}

// loadAndWrite fetches the bill and hands it to writeWithRetry
func (s *penaltyService) loadAndWrite(ctx context.Context, billID int32, mutate func(*domain.Bill) (bool, error)) (*domain.Bill, error) {
	bill, err := s.billRepo.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	return s.writeWithRetry(ctx, bill, mutate)
}

// writeWithRetry runs mutate on bill and saves it when mutate reports a
// change. On a version conflict the bill is reloaded and mutate runs again
// on the fresh copy, up to maxWriteAttempts times.
func (s *penaltyService) writeWithRetry(ctx context.Context, bill *domain.Bill, mutate func(*domain.Bill) (bool, error)) (*domain.Bill, error) {
	for attempt := 1; ; attempt++ {
		write, err := mutate(bill)
		if err != nil {
			return nil, err
		}
		if !write {
			return bill, nil
		}

		err = s.billRepo.Update(ctx, bill)
		if err == nil {
			return bill, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("save bill %d: %w", bill.ID, err)
		}

		metrics.IncVersionConflict()
		if attempt >= maxWriteAttempts {
			return nil, fmt.Errorf("save bill %d after %d attempts: %w", bill.ID, attempt, err)
		}
		logger.WithBill(bill.ID).Warn("Bill changed concurrently, reloading", "attempt", attempt)

		bill, err = s.billRepo.GetByID(ctx, bill.ID)
		if err != nil {
			return nil, err
		}
	}
}

func (s *penaltyService) acquire(ctx context.Context, kind string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	token, ok, err := s.locker.TryLock(ctx, kind, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire %s sweep lock: %w", kind, err)
	}
	if !ok {
		logger.Warn("Penalty sweep already running", "sweep", kind)
		metrics.ObserveSweep(kind, metrics.ResultSkipped, 0)
		return nil, domain.ErrSweepInProgress
	}

	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), kind, token); err != nil {
			logger.Warn("Failed to release sweep lock", "sweep", kind, "error", err)
		}
	}, nil
}

func (s *penaltyService) checkBase(billID int32, source domain.BaseSource, base decimal.Decimal) {
	switch source {
	case domain.BaseSourceStoredTotal:
		logger.WithBill(billID).Warn("Bill has no usable items, base amount taken from stored total",
			"base", base.String())
		metrics.IncBaseFallback(string(source))
	case domain.BaseSourceClamped:
		logger.WithBill(billID).Error("Bill base amount could not be derived, clamped stored total used",
			"base", base.String())
		metrics.IncBaseFallback(string(source))
	}
}

func (s *penaltyService) dispatchLateFee(ctx context.Context, ev *domain.LateFeeEvent) {
	if ev == nil || s.dispatcher == nil {
		return
	}
	e := *ev
	e.ID = uuid.NewString()
	s.dispatcher.LateFeeApplied(ctx, e)
}
