package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentdesk-backend/internal/domain"
	"rentdesk-backend/internal/penalty"
)

var (
	jan1  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan11 = time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newBill(id int32) *domain.Bill {
	return &domain.Bill{
		ID:         id,
		BillNumber: "BILL-00" + string(rune('0'+id)),
		TenantID:   7,
		Month:      12,
		Year:       2023,
		DueDate:    jan1,
		Items: &domain.BillItems{
			Rent:        &domain.Charge{Amount: amount("900")},
			Electricity: &domain.Charge{Amount: amount("100")},
		},
		TotalAmount:     amount("1000"),
		PaidAmount:      decimal.Zero,
		RemainingAmount: amount("1000"),
		Penalty:         domain.Penalty{Amount: decimal.Zero},
		Status:          domain.BillStatusPending,
		Version:         1,
	}
}

func bumpVersion(args mock.Arguments) {
	args.Get(1).(*domain.Bill).Version++
}

func newTestService(repo *MockBillRepo, dispatcher *MockDispatcher, opts ...PenaltyOption) PenaltyService {
	return NewPenaltyService(repo, penalty.NewEngine(penalty.DefaultPolicy()), dispatcher, opts...)
}

func TestPenaltyService_ApplyToBill(t *testing.T) {
	ctx := context.Background()

	t.Run("Ten days late", func(t *testing.T) {
		repo := new(MockBillRepo)
		dispatcher := new(MockDispatcher)
		svc := newTestService(repo, dispatcher)

		repo.On("GetByID", ctx, int32(1)).Return(newBill(1), nil)
		repo.On("Update", ctx, mock.MatchedBy(func(b *domain.Bill) bool {
			return b.Penalty.Amount.Equal(amount("500")) && b.TotalAmount.Equal(amount("1500"))
		})).Return(nil).Run(bumpVersion)
		dispatcher.On("LateFeeApplied", ctx, mock.MatchedBy(func(ev domain.LateFeeEvent) bool {
			return ev.ID != "" && ev.BillID == 1 && ev.LateFee.Equal(amount("500")) && ev.TotalOutstanding.Equal(amount("1500"))
		})).Return()

		res, err := svc.ApplyToBill(ctx, 1, jan11)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.True(t, amount("500").Equal(res.Amount))
		assert.Equal(t, 10, res.Days)
		assert.Equal(t, domain.BillStatusOverdue, res.Bill.Status)
		assert.True(t, amount("1500").Equal(res.Bill.TotalAmount))
		assert.Equal(t, "2024-01-01", res.Bill.DueDate)

		repo.AssertExpectations(t)
		dispatcher.AssertExpectations(t)
	})

	t.Run("Already paid writes nothing", func(t *testing.T) {
		repo := new(MockBillRepo)
		dispatcher := new(MockDispatcher)
		svc := newTestService(repo, dispatcher)

		bill := newBill(1)
		bill.Status = domain.BillStatusPaid
		repo.On("GetByID", ctx, int32(1)).Return(bill, nil)

		res, err := svc.ApplyToBill(ctx, 1, jan11)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, "Already paid", res.Reason)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		dispatcher.AssertNotCalled(t, "LateFeeApplied", mock.Anything, mock.Anything)
	})

	t.Run("Bill not found", func(t *testing.T) {
		repo := new(MockBillRepo)
		svc := newTestService(repo, new(MockDispatcher))
		repo.On("GetByID", ctx, int32(9)).Return(nil, domain.ErrBillNotFound)

		_, err := svc.ApplyToBill(ctx, 9, jan11)
		assert.ErrorIs(t, err, domain.ErrBillNotFound)
	})

	t.Run("Version conflict reloads and recomputes", func(t *testing.T) {
		repo := new(MockBillRepo)
		dispatcher := new(MockDispatcher)
		svc := newTestService(repo, dispatcher)

		stale := newBill(1)
		fresh := newBill(1)
		fresh.Version = 2
		fresh.PaidAmount = amount("200")

		repo.On("GetByID", ctx, int32(1)).Return(stale, nil).Once()
		repo.On("GetByID", ctx, int32(1)).Return(fresh, nil).Once()
		repo.On("Update", ctx, stale).Return(domain.ErrVersionConflict).Once()
		repo.On("Update", ctx, fresh).Return(nil).Run(bumpVersion).Once()
		dispatcher.On("LateFeeApplied", ctx, mock.Anything).Return()

		res, err := svc.ApplyToBill(ctx, 1, jan11)
		require.NoError(t, err)
		assert.True(t, amount("1300").Equal(res.Bill.RemainingAmount))
		assert.Equal(t, int32(3), fresh.Version)
		repo.AssertExpectations(t)
	})

	t.Run("Gives up after repeated conflicts", func(t *testing.T) {
		repo := new(MockBillRepo)
		dispatcher := new(MockDispatcher)
		svc := newTestService(repo, dispatcher)

		repo.On("GetByID", ctx, int32(1)).Return(func(context.Context, int32) *domain.Bill { return newBill(1) }, nil)
		repo.On("Update", ctx, mock.Anything).Return(domain.ErrVersionConflict)

		_, err := svc.ApplyToBill(ctx, 1, jan11)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		repo.AssertNumberOfCalls(t, "Update", maxWriteAttempts)
		repo.AssertNumberOfCalls(t, "GetByID", maxWriteAttempts)
		dispatcher.AssertNotCalled(t, "LateFeeApplied", mock.Anything, mock.Anything)
	})

	t.Run("Store failure is wrapped", func(t *testing.T) {
		repo := new(MockBillRepo)
		svc := newTestService(repo, new(MockDispatcher))
		dbErr := errors.New("connection reset")

		repo.On("GetByID", ctx, int32(1)).Return(newBill(1), nil)
		repo.On("Update", ctx, mock.Anything).Return(dbErr)

		_, err := svc.ApplyToBill(ctx, 1, jan11)
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestPenaltyService_PreviewMatchesApply(t *testing.T) {
	ctx := context.Background()
	repo := new(MockBillRepo)
	dispatcher := new(MockDispatcher)
	svc := newTestService(repo, dispatcher)

	repo.On("GetByID", ctx, int32(1)).Return(func(context.Context, int32) *domain.Bill { return newBill(1) }, nil)
	repo.On("Update", ctx, mock.Anything).Return(nil)
	dispatcher.On("LateFeeApplied", ctx, mock.Anything).Return()

	preview, err := svc.PreviewPenalty(ctx, 1, jan11)
	require.NoError(t, err)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)

	applied, err := svc.ApplyToBill(ctx, 1, jan11)
	require.NoError(t, err)

	assert.True(t, preview.ShouldApply)
	assert.True(t, preview.Amount.Equal(applied.Amount))
	assert.Equal(t, preview.Days, applied.Days)
	assert.True(t, preview.ProjectedTotal.Equal(applied.Bill.TotalAmount))
	assert.Equal(t, domain.BaseSourceItems, preview.BaseSource)
	assert.Equal(t, "flat_daily", preview.Strategy)
}

func TestPenaltyService_PreviewTerminalBill(t *testing.T) {
	ctx := context.Background()
	repo := new(MockBillRepo)
	svc := newTestService(repo, new(MockDispatcher))

	bill := newBill(1)
	bill.Status = domain.BillStatusPaid
	repo.On("GetByID", ctx, int32(1)).Return(bill, nil)

	preview, err := svc.PreviewPenalty(ctx, 1, jan11)
	require.NoError(t, err)
	assert.False(t, preview.ShouldApply)
	assert.True(t, preview.Amount.IsZero())
	assert.True(t, amount("1000").Equal(preview.ProjectedTotal))
}

func TestPenaltyService_AdjustPenalty(t *testing.T) {
	ctx := context.Background()

	penalized := func() *domain.Bill {
		b := newBill(1)
		penalty.NewEngine(penalty.DefaultPolicy()).Apply(b, jan11)
		return b
	}

	t.Run("Waive applied penalty", func(t *testing.T) {
		repo := new(MockBillRepo)
		svc := newTestService(repo, new(MockDispatcher))

		repo.On("GetByID", ctx, int32(1)).Return(penalized(), nil)
		repo.On("Update", ctx, mock.Anything).Return(nil)

		res, err := svc.AdjustPenalty(ctx, 1, amount("-500"), jan11)
		require.NoError(t, err)
		assert.True(t, amount("500").Equal(res.PreviousPenalty))
		assert.True(t, res.NewPenalty.IsZero())
		assert.True(t, amount("1000").Equal(res.TotalAmount))
		assert.True(t, amount("1000").Equal(res.RemainingAmount))
	})

	t.Run("Floors at zero", func(t *testing.T) {
		repo := new(MockBillRepo)
		svc := newTestService(repo, new(MockDispatcher))

		repo.On("GetByID", ctx, int32(1)).Return(penalized(), nil)
		repo.On("Update", ctx, mock.Anything).Return(nil)

		res, err := svc.AdjustPenalty(ctx, 1, amount("-99999"), jan11)
		require.NoError(t, err)
		assert.True(t, res.NewPenalty.IsZero())
		assert.True(t, amount("1000").Equal(res.TotalAmount))
	})

	t.Run("Paid bill is rejected", func(t *testing.T) {
		repo := new(MockBillRepo)
		svc := newTestService(repo, new(MockDispatcher))

		bill := penalized()
		bill.Status = domain.BillStatusPaid
		repo.On("GetByID", ctx, int32(1)).Return(bill, nil)

		_, err := svc.AdjustPenalty(ctx, 1, amount("100"), jan11)
		assert.ErrorIs(t, err, domain.ErrBillImmutable)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("Remove", func(t *testing.T) {
		repo := new(MockBillRepo)
		svc := newTestService(repo, new(MockDispatcher))

		repo.On("GetByID", ctx, int32(1)).Return(penalized(), nil)
		repo.On("Update", ctx, mock.MatchedBy(func(b *domain.Bill) bool {
			return b.Penalty.Amount.IsZero() && b.Penalty.AppliedDate == nil
		})).Return(nil)

		res, err := svc.RemovePenalty(ctx, 1, jan11)
		require.NoError(t, err)
		assert.True(t, amount("500").Equal(res.PreviousPenalty))
		assert.True(t, amount("1000").Equal(res.TotalAmount))
		repo.AssertExpectations(t)
	})
}

func TestPenaltyService_ApplyMonthlyPenalties(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

	overdue := *newBill(1)
	failing := *newBill(2)
	dueHoursAgo := *newBill(3)
	dueHoursAgo.DueDate = now.Add(-6 * time.Hour)

	repo := new(MockBillRepo)
	dispatcher := new(MockDispatcher)
	locker := new(MockLocker)
	svc := newTestService(repo, dispatcher, WithSweepLock(locker, time.Minute))

	locker.On("TryLock", ctx, "apply", time.Minute).Return("token-1", true, nil)
	locker.On("Release", mock.Anything, "apply", "token-1").Return(nil)
	repo.On("ListForPenalty", ctx, domain.BillFilter{
		Statuses:  domain.PenaltyEligibleStatuses,
		DueBefore: now,
	}).Return([]domain.Bill{overdue, failing, dueHoursAgo}, nil)
	repo.On("Update", ctx, mock.MatchedBy(func(b *domain.Bill) bool { return b.ID == 1 })).Return(nil)
	repo.On("Update", ctx, mock.MatchedBy(func(b *domain.Bill) bool { return b.ID == 2 })).Return(errors.New("disk full"))
	dispatcher.On("LateFeeApplied", ctx, mock.MatchedBy(func(ev domain.LateFeeEvent) bool { return ev.BillID == 1 })).Return().Once()
	dispatcher.On("PenaltiesApplied", ctx, mock.MatchedBy(func(ev domain.SweepEvent) bool {
		return ev.PenaltiesApplied == 1 && ev.TotalPenaltyAmount.Equal(amount("1750")) && ev.Type == domain.SweepEventTypePenaltiesApplied
	})).Return().Once()

	res, err := svc.ApplyMonthlyPenalties(ctx, now)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.PenaltiesApplied)
	assert.True(t, amount("1750").Equal(res.TotalPenaltyAmount)) // 35 days * 50
	assert.Equal(t, 1, res.FailedBills)
	require.Len(t, res.ProcessedBills, 3)
	assert.True(t, res.ProcessedBills[0].Applied)
	assert.Contains(t, res.ProcessedBills[1].Error, "disk full")
	assert.False(t, res.ProcessedBills[2].Applied)
	assert.Equal(t, "Not overdue yet", res.ProcessedBills[2].Reason)

	repo.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
	locker.AssertExpectations(t)
}

func TestPenaltyService_SweepLock(t *testing.T) {
	ctx := context.Background()

	t.Run("Busy lock", func(t *testing.T) {
		repo := new(MockBillRepo)
		locker := new(MockLocker)
		svc := newTestService(repo, new(MockDispatcher), WithSweepLock(locker, time.Minute))

		locker.On("TryLock", ctx, "apply", time.Minute).Return("", false, nil)

		_, err := svc.ApplyMonthlyPenalties(ctx, jan11)
		assert.ErrorIs(t, err, domain.ErrSweepInProgress)
		repo.AssertNotCalled(t, "ListForPenalty", mock.Anything, mock.Anything)
		locker.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Lock backend failure", func(t *testing.T) {
		locker := new(MockLocker)
		svc := newTestService(new(MockBillRepo), new(MockDispatcher), WithSweepLock(locker, time.Minute))

		locker.On("TryLock", ctx, "recalculate", time.Minute).Return("", false, errors.New("redis down"))

		_, err := svc.RecalculateAllPenalties(ctx, jan11)
		assert.ErrorContains(t, err, "redis down")
	})

	t.Run("No sweep event when nothing applied", func(t *testing.T) {
		repo := new(MockBillRepo)
		dispatcher := new(MockDispatcher)
		svc := newTestService(repo, dispatcher)

		repo.On("ListForPenalty", ctx, mock.Anything).Return([]domain.Bill{}, nil)

		res, err := svc.ApplyMonthlyPenalties(ctx, jan11)
		require.NoError(t, err)
		assert.Equal(t, 0, res.PenaltiesApplied)
		dispatcher.AssertNotCalled(t, "PenaltiesApplied", mock.Anything, mock.Anything)
	})
}

func TestPenaltyService_RecalculateAllPenalties(t *testing.T) {
	ctx := context.Background()

	corrupted := *newBill(1)
	corrupted.Status = domain.BillStatusOverdue
	corrupted.Penalty.Amount = amount("900")
	corrupted.TotalAmount = amount("1900")

	correct := *newBill(2)
	penalty.NewEngine(penalty.DefaultPolicy()).Apply(&correct, jan11)

	repo := new(MockBillRepo)
	svc := newTestService(repo, new(MockDispatcher))

	var stored []domain.Bill
	repo.On("ListForPenalty", ctx, mock.Anything).Return(func(context.Context, domain.BillFilter) []domain.Bill {
		if stored == nil {
			return []domain.Bill{corrupted, correct}
		}
		return stored
	}, nil)
	repo.On("Update", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		b := args.Get(1).(*domain.Bill)
		b.Version++
		stored = append(stored, *b)
	})

	first, err := svc.RecalculateAllPenalties(ctx, jan11)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Recalculated)
	assert.True(t, amount("-400").Equal(first.TotalPenaltyCorrection))
	require.Len(t, first.ProcessedBills, 2)
	assert.True(t, first.ProcessedBills[0].Rewritten)
	assert.True(t, amount("500").Equal(first.ProcessedBills[0].CorrectPenalty))
	assert.False(t, first.ProcessedBills[1].Rewritten)
	repo.AssertNumberOfCalls(t, "Update", 1)

	stored = append(stored, correct)
	second, err := svc.RecalculateAllPenalties(ctx, jan11)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Recalculated)
	assert.True(t, second.TotalPenaltyCorrection.IsZero())
	repo.AssertNumberOfCalls(t, "Update", 1)
}

func TestPenaltyService_ResweepDoesNotRenotify(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

	repo := new(MockBillRepo)
	dispatcher := new(MockDispatcher)
	svc := newTestService(repo, dispatcher)

	stored := map[int32]domain.Bill{1: *newBill(1)}
	repo.On("ListForPenalty", ctx, mock.Anything).Return(func(context.Context, domain.BillFilter) []domain.Bill {
		return []domain.Bill{stored[1]}
	}, nil)
	repo.On("Update", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		b := args.Get(1).(*domain.Bill)
		b.Version++
		stored[b.ID] = *b
	})
	dispatcher.On("LateFeeApplied", ctx, mock.Anything).Return().Once()
	dispatcher.On("PenaltiesApplied", ctx, mock.Anything).Return().Once()

	first, err := svc.ApplyMonthlyPenalties(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PenaltiesApplied)
	assert.True(t, amount("1750").Equal(first.TotalPenaltyAmount))

	second, err := svc.ApplyMonthlyPenalties(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, second.PenaltiesApplied)
	assert.True(t, second.TotalPenaltyAmount.IsZero())
	require.Len(t, second.ProcessedBills, 1)
	assert.False(t, second.ProcessedBills[0].Applied)
	assert.Equal(t, domain.PenaltyReasonUnchanged, second.ProcessedBills[0].Reason)
	assert.True(t, amount("1750").Equal(stored[1].Penalty.Amount))

	repo.AssertNumberOfCalls(t, "Update", 1)
	dispatcher.AssertNumberOfCalls(t, "LateFeeApplied", 1)
	dispatcher.AssertNumberOfCalls(t, "PenaltiesApplied", 1)

	// A later reference time accrues more days and is a new late fee
	dispatcher.On("LateFeeApplied", ctx, mock.MatchedBy(func(ev domain.LateFeeEvent) bool {
		return ev.LateFee.Equal(amount("2200"))
	})).Return().Once()
	dispatcher.On("PenaltiesApplied", ctx, mock.Anything).Return().Once()

	third, err := svc.ApplyMonthlyPenalties(ctx, now.AddDate(0, 0, 9))
	require.NoError(t, err)
	assert.Equal(t, 1, third.PenaltiesApplied)
	dispatcher.AssertNumberOfCalls(t, "LateFeeApplied", 2)
}

func TestPenaltyService_ApplyToBillUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := new(MockBillRepo)
	dispatcher := new(MockDispatcher)
	svc := newTestService(repo, dispatcher)

	bill := newBill(1)
	penalty.NewEngine(penalty.DefaultPolicy()).Apply(bill, jan11)
	repo.On("GetByID", ctx, int32(1)).Return(bill, nil)

	res, err := svc.ApplyToBill(ctx, 1, jan11)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.PenaltyReasonUnchanged, res.Reason)
	assert.True(t, amount("1500").Equal(res.Bill.TotalAmount))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "LateFeeApplied", mock.Anything, mock.Anything)
}

func TestPenaltyService_AdjustByZeroWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := new(MockBillRepo)
	svc := newTestService(repo, new(MockDispatcher))

	bill := newBill(1)
	penalty.NewEngine(penalty.DefaultPolicy()).Apply(bill, jan11)
	applied := *bill.Penalty.AppliedDate
	repo.On("GetByID", ctx, int32(1)).Return(bill, nil)

	res, err := svc.AdjustPenalty(ctx, 1, decimal.Zero, jan11.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.True(t, amount("500").Equal(res.NewPenalty))
	assert.Equal(t, applied, *bill.Penalty.AppliedDate)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
