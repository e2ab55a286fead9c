package penalty

import (
	"time"

	"github.com/shopspring/decimal"

	"rentdesk-backend/internal/domain"
)

// Engine applies a single Policy to bills. Preview, apply, sweep and
// recalculation all go through Assess so they can never disagree.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Rate is the value recorded in Penalty.Rate for the configured strategy
func (e *Engine) Rate() decimal.Decimal {
	if e.policy.Strategy == StrategyPercentageCapped {
		return e.policy.PercentPerDay
	}
	return e.policy.DailyRate
}

// Assessment is a penalty calculation together with the base it was built on
type Assessment struct {
	Calculation
	BaseAmount decimal.Decimal
	BaseSource domain.BaseSource
}

// Assess computes the penalty owed on bill at now without changing it
func (e *Engine) Assess(bill *domain.Bill, now time.Time) Assessment {
	base, source := ResolveBaseAmount(bill)

	var calc Calculation
	switch e.policy.Strategy {
	case StrategyPercentageCapped:
		calc = CalculatePercentage(bill.DueDate, now, base, e.policy.PercentPerDay, e.policy.PercentCap)
	default:
		calc = Calculate(bill.DueDate, now, e.policy.DailyRate)
	}

	return Assessment{Calculation: calc, BaseAmount: base, BaseSource: source}
}

// Outcome describes what Apply did to a bill
type Outcome struct {
	Applied bool

	// Changed is set when the penalty amount or days differ from the
	// stored ones, i.e. the penalty is newly applied.
	Changed bool

	// Modified is set when any persisted field of the bill changed.
	Modified bool

	Amount     decimal.Decimal
	Days       int
	Reason     string
	BaseAmount decimal.Decimal
	BaseSource domain.BaseSource

	// Event is set when a positive penalty was newly applied. Its ID is
	// left empty for the caller to assign.
	Event *domain.LateFeeEvent
}

// Apply recomputes the bill's penalty from scratch at now. Paid, cancelled
// and not-yet-overdue bills are left untouched.
func (e *Engine) Apply(bill *domain.Bill, now time.Time) Outcome {
	switch bill.Status {
	case domain.BillStatusPaid:
		return Outcome{Amount: decimal.Zero, Reason: domain.PenaltyReasonAlreadyPaid}
	case domain.BillStatusCancelled:
		return Outcome{Amount: decimal.Zero, Reason: domain.PenaltyReasonCancelled}
	}

	a := e.Assess(bill, now)
	if !a.ShouldApply {
		return Outcome{
			Amount:     decimal.Zero,
			Reason:     domain.PenaltyReasonNotOverdueYet,
			BaseAmount: a.BaseAmount,
			BaseSource: a.BaseSource,
		}
	}

	prev := bill.Penalty
	prevTotal, prevRemaining, prevStatus := bill.TotalAmount, bill.RemainingAmount, bill.Status

	e.setPenalty(bill, a, now)
	changed := !prev.Amount.Equal(a.Amount) || prev.Days != a.Days
	if !changed && prev.AppliedDate != nil && bill.Penalty.AppliedDate != nil {
		bill.Penalty.AppliedDate = prev.AppliedDate
	}
	if a.Amount.IsPositive() && (bill.Status == domain.BillStatusPending || bill.Status == domain.BillStatusPartiallyPaid) {
		bill.Status = domain.BillStatusOverdue
	}

	modified := changed ||
		!prev.Rate.Equal(bill.Penalty.Rate) ||
		(prev.AppliedDate == nil) != (bill.Penalty.AppliedDate == nil) ||
		!prevTotal.Equal(bill.TotalAmount) ||
		!prevRemaining.Equal(bill.RemainingAmount) ||
		prevStatus != bill.Status

	out := Outcome{
		Applied:    true,
		Changed:    changed,
		Modified:   modified,
		Amount:     a.Amount,
		Days:       a.Days,
		BaseAmount: a.BaseAmount,
		BaseSource: a.BaseSource,
	}
	if !changed {
		out.Reason = domain.PenaltyReasonUnchanged
	}

	if changed && a.Amount.IsPositive() {
		out.Event = &domain.LateFeeEvent{
			BillID:           bill.ID,
			BillNumber:       bill.BillNumber,
			TenantID:         bill.TenantID,
			Month:            bill.Month,
			Year:             bill.Year,
			DueDate:          bill.DueDate,
			Days:             a.Days,
			LateFee:          a.Amount,
			TotalOutstanding: bill.RemainingAmount,
			AppliedAt:        now,
		}
	}
	return out
}

// Reconciliation compares a bill's stored penalty with the correct one
type Reconciliation struct {
	Assessment
	StoredPenalty decimal.Decimal
	Correction    decimal.Decimal // correct - stored
	NeedsRewrite  bool
}

// Reconcile reports whether bill's stored penalty or total drifted from
// the correct values by more than the policy tolerance.
func (e *Engine) Reconcile(bill *domain.Bill, now time.Time) Reconciliation {
	a := e.Assess(bill, now)
	correct := decimal.Zero
	if a.ShouldApply {
		correct = a.Amount
	}

	stored := bill.Penalty.Amount
	correction := correct.Sub(stored)
	totalDrift := bill.TotalAmount.Sub(a.BaseAmount.Add(stored))

	a.Amount = correct
	return Reconciliation{
		Assessment:    a,
		StoredPenalty: stored,
		Correction:    correction,
		NeedsRewrite: !bill.Status.IsTerminal() &&
			(correction.Abs().GreaterThan(e.policy.Tolerance) || totalDrift.Abs().GreaterThan(e.policy.Tolerance)),
	}
}

// Rewrite stores a reconciliation's correct penalty on the bill
func (e *Engine) Rewrite(bill *domain.Bill, r Reconciliation, now time.Time) {
	e.setPenalty(bill, r.Assessment, now)
	if r.Amount.IsPositive() && (bill.Status == domain.BillStatusPending || bill.Status == domain.BillStatusPartiallyPaid) {
		bill.Status = domain.BillStatusOverdue
	}
}

func (e *Engine) setPenalty(bill *domain.Bill, a Assessment, now time.Time) {
	applied := now
	bill.Penalty = domain.Penalty{
		Amount:      a.Amount,
		Days:        a.Days,
		Rate:        e.Rate(),
		AppliedDate: &applied,
	}
	if !a.Amount.IsPositive() {
		bill.Penalty.Days = 0
		bill.Penalty.AppliedDate = nil
	}
	bill.TotalAmount = a.BaseAmount.Add(bill.Penalty.Amount)
	bill.RecomputeRemaining()
}

// AdjustOutcome describes a manual penalty change
type AdjustOutcome struct {
	PreviousPenalty decimal.Decimal
	NewPenalty      decimal.Decimal
	TotalAmount     decimal.Decimal
}

// Adjust moves the bill's penalty by delta, never below zero.
//
// Unlike Apply, the base is taken as the stored total minus the current
// penalty rather than the item sum, so adjustments on legacy bills keep
// whatever base the bill was last saved with.
func Adjust(bill *domain.Bill, delta decimal.Decimal, now time.Time) (AdjustOutcome, error) {
	if bill.Status.IsTerminal() {
		return AdjustOutcome{}, domain.ErrBillImmutable
	}

	current := bill.Penalty.Amount
	base := bill.TotalAmount.Sub(current)

	next := current.Add(delta)
	if next.IsNegative() {
		next = decimal.Zero
	}

	bill.Penalty.Amount = next
	switch {
	case !next.IsPositive():
		bill.Penalty.Days = 0
		bill.Penalty.AppliedDate = nil
	case !next.Equal(current):
		applied := now
		bill.Penalty.AppliedDate = &applied
	}
	bill.TotalAmount = base.Add(next)
	bill.RecomputeRemaining()

	return AdjustOutcome{
		PreviousPenalty: current,
		NewPenalty:      next,
		TotalAmount:     bill.TotalAmount,
	}, nil
}
