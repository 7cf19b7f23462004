package domain

import "github.com/shopspring/decimal"

// LineAllocation is the computed money for one receipt line.
type LineAllocation struct {
	Position    Position
	LineTotal   decimal.Decimal
	BonusEarned decimal.Decimal
}

var one = decimal.NewFromInt(1)

// Allocate distributes the receipt-level bonus across line items. For each
// line, line_total = round2(quantity × (price − discount)) and the bonus is
// allocated proportionally to the line's share of the stated receipt total:
// bonus = round2(bonus_earned × line_total / total_amount). A non-positive
// total falls back to a denominator of 1. Rounding is half-up per line, so
// the rounded bonuses may drift from the stated total by up to a cent per
// line; that drift is accepted, not reconciled.
//
// Pure function: output order matches input order and nothing is mutated.
func Allocate(positions []Position, totals Totals) []LineAllocation {
	denom := totals.TotalAmount
	if !denom.IsPositive() {
		denom = one
	}

	allocations := make([]LineAllocation, 0, len(positions))
	for _, pos := range positions {
		lineTotal := round2(pos.Price.Sub(pos.DiscountAmount).Mul(pos.Quantity))
		bonus := round2(totals.BonusEarned.Mul(lineTotal).Div(denom))
		allocations = append(allocations, LineAllocation{
			Position:    pos,
			LineTotal:   lineTotal,
			BonusEarned: bonus,
		})
	}
	return allocations
}

// round2 rounds to 2 decimal places, half up.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
