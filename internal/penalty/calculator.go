// Package penalty computes late fees for rental bills. Everything here is
// pure: callers pass the reference time and persist the mutated bill.
package penalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Strategy names a late fee formula
type Strategy string

const (
	// StrategyFlatDaily charges a fixed amount per whole day overdue, uncapped.
	StrategyFlatDaily Strategy = "flat_daily"
	// StrategyPercentageCapped charges a percentage of the base per day,
	// capped at a percentage of the base.
	StrategyPercentageCapped Strategy = "percentage_capped"
)

// Policy configures an Engine
type Policy struct {
	Strategy      Strategy
	DailyRate     decimal.Decimal // flat_daily: currency units per day
	PercentPerDay decimal.Decimal // percentage_capped: percent of base per day
	PercentCap    decimal.Decimal // percentage_capped: max percent of base
	Tolerance     decimal.Decimal // recalculation rewrite threshold
}

// DefaultPolicy is 50 units per day overdue with a 1 unit tolerance
func DefaultPolicy() Policy {
	return Policy{
		Strategy:      StrategyFlatDaily,
		DailyRate:     decimal.NewFromInt(50),
		PercentPerDay: decimal.NewFromInt(1),
		PercentCap:    decimal.NewFromInt(25),
		Tolerance:     decimal.NewFromInt(1),
	}
}

// ParsePolicy builds a Policy from its textual configuration
func ParsePolicy(strategy, dailyRate, percentPerDay, percentCap, tolerance string) (Policy, error) {
	p := DefaultPolicy()
	switch Strategy(strategy) {
	case StrategyFlatDaily, StrategyPercentageCapped:
		p.Strategy = Strategy(strategy)
	case "":
	default:
		return Policy{}, fmt.Errorf("unknown penalty strategy %q", strategy)
	}

	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{dailyRate, &p.DailyRate},
		{percentPerDay, &p.PercentPerDay},
		{percentCap, &p.PercentCap},
		{tolerance, &p.Tolerance},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid penalty setting %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return p, nil
}

// Calculation is the late fee owed at a reference time
type Calculation struct {
	Amount      decimal.Decimal
	Days        int
	ShouldApply bool
}

// DaysOverdue returns the number of whole days between dueDate and now,
// or 0 when now is not after dueDate.
func DaysOverdue(dueDate, now time.Time) int {
	if !now.After(dueDate) {
		return 0
	}
	return int(now.Sub(dueDate) / day)
}

// Calculate applies the flat daily formula: days overdue times rate.
// A bill less than one whole day late owes nothing.
func Calculate(dueDate, now time.Time, rate decimal.Decimal) Calculation {
	days := DaysOverdue(dueDate, now)
	if days < 1 {
		return Calculation{Amount: decimal.Zero}
	}
	return Calculation{
		Amount:      rate.Mul(decimal.NewFromInt(int64(days))),
		Days:        days,
		ShouldApply: true,
	}
}

// CalculatePercentage applies the percentage formula: base * percentPerDay%
// per day, never above base * percentCap%. Rounded to cents.
func CalculatePercentage(dueDate, now time.Time, base, percentPerDay, percentCap decimal.Decimal) Calculation {
	days := DaysOverdue(dueDate, now)
	if days < 1 {
		return Calculation{Amount: decimal.Zero}
	}
	raw := base.Mul(percentPerDay).Div(hundred).Mul(decimal.NewFromInt(int64(days)))
	limit := base.Mul(percentCap).Div(hundred)
	if limit.IsNegative() {
		limit = decimal.Zero
	}
	if raw.GreaterThan(limit) {
		raw = limit
	}
	return Calculation{
		Amount:      raw.Round(2),
		Days:        days,
		ShouldApply: true,
	}
}
