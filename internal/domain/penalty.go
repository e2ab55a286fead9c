package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reasons reported when a penalty is not applied
const (
	PenaltyReasonAlreadyPaid   = "Already paid"
	PenaltyReasonCancelled     = "Bill cancelled"
	PenaltyReasonNotOverdueYet = "Not overdue yet"
	PenaltyReasonUnchanged     = "Penalty unchanged"
)

// BaseSource records which path produced a bill's base amount
type BaseSource string

const (
	BaseSourceItems       BaseSource = "items"
	BaseSourceStoredTotal BaseSource = "stored_total"
	BaseSourceClamped     BaseSource = "clamped"
)

// ApplyResult is the outcome of applying a penalty to a single bill
type ApplyResult struct {
	Applied bool            `json:"applied"`
	Amount  decimal.Decimal `json:"amount"`
	Days    int             `json:"days"`
	Reason  string          `json:"reason,omitempty"`
	Bill    BillSummary     `json:"bill"`
}

// PenaltyPreview is a read-only penalty computation
type PenaltyPreview struct {
	BillID         int32           `json:"bill_id"`
	ReferenceNow   time.Time       `json:"reference_now"`
	Strategy       string          `json:"strategy"`
	ShouldApply    bool            `json:"should_apply"`
	Amount         decimal.Decimal `json:"amount"`
	Days           int             `json:"days"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	BaseSource     BaseSource      `json:"base_source"`
	CurrentPenalty decimal.Decimal `json:"current_penalty"`
	ProjectedTotal decimal.Decimal `json:"projected_total"`
}

// AdjustResult is the outcome of a manual penalty adjustment or removal
type AdjustResult struct {
	BillID          int32           `json:"bill_id"`
	PreviousPenalty decimal.Decimal `json:"previous_penalty"`
	NewPenalty      decimal.Decimal `json:"new_penalty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// ProcessedBill is one bill's line in a monthly sweep result
type ProcessedBill struct {
	BillID     int32           `json:"bill_id"`
	BillNumber string          `json:"bill_number"`
	Applied    bool            `json:"applied"`
	Amount     decimal.Decimal `json:"amount"`
	Days       int             `json:"days"`
	Reason     string          `json:"reason,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// SweepResult summarizes a monthly penalty sweep
type SweepResult struct {
	RunID              string          `json:"run_id"`
	PenaltiesApplied   int             `json:"penalties_applied"`
	TotalPenaltyAmount decimal.Decimal `json:"total_penalty_amount"`
	FailedBills        int             `json:"failed_bills"`
	ProcessedBills     []ProcessedBill `json:"processed_bills"`
}

// RecalculatedBill is one bill's line in a recalculation sweep result
type RecalculatedBill struct {
	BillID          int32           `json:"bill_id"`
	BillNumber      string          `json:"bill_number"`
	PreviousPenalty decimal.Decimal `json:"previous_penalty"`
	CorrectPenalty  decimal.Decimal `json:"correct_penalty"`
	Correction      decimal.Decimal `json:"correction"`
	Rewritten       bool            `json:"rewritten"`
	Error           string          `json:"error,omitempty"`
}

// RecalculationResult summarizes a recalculation sweep
type RecalculationResult struct {
	RunID                  string             `json:"run_id"`
	Recalculated           int                `json:"recalculated"`
	TotalPenaltyCorrection decimal.Decimal    `json:"total_penalty_correction"`
	FailedBills            int                `json:"failed_bills"`
	ProcessedBills         []RecalculatedBill `json:"processed_bills"`
}

// LateFeeEvent describes a newly applied penalty for the notification
// and email collaborators.
type LateFeeEvent struct {
	ID               string          `json:"id"`
	BillID           int32           `json:"bill_id"`
	BillNumber       string          `json:"bill_number"`
	TenantID         int32           `json:"tenant_id"`
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	DueDate          time.Time       `json:"due_date"`
	Days             int             `json:"days"`
	LateFee          decimal.Decimal `json:"late_fee"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	AppliedAt        time.Time       `json:"applied_at"`
}

// SweepEvent is broadcast once per sweep that applied at least one penalty
type SweepEvent struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	RunID              string          `json:"run_id"`
	PenaltiesApplied   int             `json:"penalties_applied"`
	TotalPenaltyAmount decimal.Decimal `json:"total_penalty_amount"`
	ReferenceNow       time.Time       `json:"reference_now"`
}

const SweepEventTypePenaltiesApplied = "penalties_applied"
