package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/shopping-basket/internal/domain/basket"
)

// Calculate computes the basket total.
//
// Discount codes reduce only the non-discounted subtotal and compound in the
// order they were applied. Already-discounted lines are added afterwards,
// then shipping, then VAT on the whole amount when includeVAT is set. No
// rounding is applied.
func Calculate(s basket.Snapshot, t Tables, includeVAT bool) decimal.Decimal {
	total := discountedSubtotal(s, t).Add(s.DiscountedTotal())
	total = total.Add(shippingCost(s, t))
	if includeVAT {
		total = total.Add(total.Mul(t.VAT))
	}
	return total
}

func discountedSubtotal(s basket.Snapshot, t Tables) decimal.Decimal {
	subtotal := s.NonDiscountedTotal()
	for _, code := range s.AppliedCodes {
		p, ok := t.Discounts[code]
		if !ok {
			continue
		}
		subtotal = subtotal.Sub(subtotal.Mul(p))
	}
	return subtotal
}

func shippingCost(s basket.Snapshot, t Tables) decimal.Decimal {
	if !s.HasShippingRegion() {
		return decimal.Zero
	}
	if cost, ok := t.Shipping[s.ShippingRegion]; ok {
		return cost
	}
	return decimal.Zero
}
