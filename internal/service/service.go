package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"rentdesk-backend/internal/domain"
)

// PenaltyService is the late fee engine exposed to the HTTP API and jobs.
// Every operation takes the reference time explicitly.
type PenaltyService interface {
	ApplyToBill(ctx context.Context, billID int32, now time.Time) (*domain.ApplyResult, error)
	ApplyMonthlyPenalties(ctx context.Context, now time.Time) (*domain.SweepResult, error)
	PreviewPenalty(ctx context.Context, billID int32, now time.Time) (*domain.PenaltyPreview, error)
	AdjustPenalty(ctx context.Context, billID int32, delta decimal.Decimal, now time.Time) (*domain.AdjustResult, error)
	RemovePenalty(ctx context.Context, billID int32, now time.Time) (*domain.AdjustResult, error)
	RecalculateAllPenalties(ctx context.Context, now time.Time) (*domain.RecalculationResult, error)
}

// LateFeeNotice is the content of a late fee email
type LateFeeNotice struct {
	BillNumber       string
	Month            int
	Year             int
	DueDate          time.Time
	Days             int
	LateFee          decimal.Decimal
	TotalOutstanding decimal.Decimal
}

type EmailService interface {
	SendLateFeeNotification(ctx context.Context, to, name string, notice LateFeeNotice) error
}

// Broadcaster publishes penalty events to other systems
type Broadcaster interface {
	Broadcast(ctx context.Context, eventType string, payload any) error
}

// SweepLocker serializes sweeps across processes
type SweepLocker interface {
	TryLock(ctx context.Context, kind string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, kind, token string) error
}

// Dispatcher delivers the side effects of applied penalties. Failures are
// handled internally and never reach the caller.
type Dispatcher interface {
	LateFeeApplied(ctx context.Context, event domain.LateFeeEvent)
	PenaltiesApplied(ctx context.Context, event domain.SweepEvent)
}
