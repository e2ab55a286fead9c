package penalty

import (
	"github.com/shopspring/decimal"

	"rentdesk-backend/internal/domain"
)

// SumItems adds every itemized charge on the bill. Missing items sum to zero.
func SumItems(items *domain.BillItems) decimal.Decimal {
	if items == nil {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range []*domain.Charge{items.Rent, items.Electricity, items.WaterBill, items.CommonAreaCharges} {
		if c != nil {
			sum = sum.Add(c.Amount)
		}
	}
	for _, c := range items.AdditionalCharges {
		sum = sum.Add(c.Amount)
	}
	for _, c := range items.Utilities {
		sum = sum.Add(c.Amount)
	}
	return sum
}

// ResolveBaseAmount returns the bill's amount before penalty.
//
// The item sum is authoritative. Legacy bills without usable items fall back
// to the stored total minus the stored penalty. If that is not positive
// either, the base is zero: the stored total already carries the penalty and
// cannot serve as a base. Callers should log whenever the source is not
// BaseSourceItems.
func ResolveBaseAmount(bill *domain.Bill) (decimal.Decimal, domain.BaseSource) {
	if sum := SumItems(bill.Items); sum.IsPositive() {
		return sum, domain.BaseSourceItems
	}

	if extracted := bill.TotalAmount.Sub(bill.Penalty.Amount); extracted.IsPositive() {
		return extracted, domain.BaseSourceStoredTotal
	}

	return decimal.Zero, domain.BaseSourceClamped
}
