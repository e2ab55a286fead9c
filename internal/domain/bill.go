package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillStatusPending                    BillStatus = "pending"
	BillStatusPartiallyPaid              BillStatus = "partially_paid"
	BillStatusOverdue                    BillStatus = "overdue"
	BillStatusPaid                       BillStatus = "paid"
	BillStatusPaymentPendingVerification BillStatus = "payment_pending_verification"
	BillStatusCancelled                  BillStatus = "cancelled"
)

// PenaltyEligibleStatuses are the statuses swept by the monthly and recalculation jobs.
var PenaltyEligibleStatuses = []BillStatus{
	BillStatusPending,
	BillStatusPartiallyPaid,
	BillStatusOverdue,
}

// IsTerminal reports whether the bill can no longer be changed by the penalty engine.
func (s BillStatus) IsTerminal() bool {
	return s == BillStatusPaid || s == BillStatusCancelled
}

// Charge is one itemized line of a bill
type Charge struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// BillItems holds the itemized charges. Nil pointers mean the charge is absent.
type BillItems struct {
	Rent              *Charge           `json:"rent,omitempty"`
	Electricity       *Charge           `json:"electricity,omitempty"`
	WaterBill         *Charge           `json:"waterBill,omitempty"`
	CommonAreaCharges *Charge           `json:"commonAreaCharges,omitempty"`
	AdditionalCharges []Charge          `json:"additionalCharges,omitempty"`
	Utilities         map[string]Charge `json:"utilities,omitempty"`
}

// Penalty is the engine-owned late fee state of a bill
type Penalty struct {
	Amount      decimal.Decimal `json:"amount"`
	Days        int             `json:"days"`
	Rate        decimal.Decimal `json:"rate"`
	AppliedDate *time.Time      `json:"applied_date,omitempty"`
}

type Bill struct {
	ID              int32           `json:"id"`
	BillNumber      string          `json:"bill_number"`
	TenantID        int32           `json:"tenant_id"`
	RoomID          int32           `json:"room_id"`
	Month           int             `json:"month"`
	Year            int             `json:"year"`
	DueDate         time.Time       `json:"due_date"`
	Items           *BillItems      `json:"items,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Penalty         Penalty         `json:"penalty"`
	Status          BillStatus      `json:"status"`
	Version         int32           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RecomputeRemaining sets RemainingAmount = max(0, TotalAmount - PaidAmount)
func (b *Bill) RecomputeRemaining() {
	remaining := b.TotalAmount.Sub(b.PaidAmount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	b.RemainingAmount = remaining
}

// BillFilter selects bills for a penalty sweep
type BillFilter struct {
	Statuses  []BillStatus
	DueBefore time.Time
}

// BillSummary is the compact bill view returned by the API
type BillSummary struct {
	ID              int32           `json:"id"`
	BillNumber      string          `json:"bill_number"`
	Status          BillStatus      `json:"status"`
	DueDate         string          `json:"due_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Penalty         Penalty         `json:"penalty"`
}

func (b *Bill) Summary() BillSummary {
	return BillSummary{
		ID:              b.ID,
		BillNumber:      b.BillNumber,
		Status:          b.Status,
		DueDate:         b.DueDate.Format("2006-01-02"),
		TotalAmount:     b.TotalAmount,
		PaidAmount:      b.PaidAmount,
		RemainingAmount: b.RemainingAmount,
		Penalty:         b.Penalty,
	}
}
