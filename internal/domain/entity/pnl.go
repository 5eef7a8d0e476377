package entity

import "github.com/shopspring/decimal"

// PnL returns the profit of a position of the given side entered at entry and
// marked (or closed) at mark.
func PnL(side Side, entry, mark decimal.Decimal, quantity int64) decimal.Decimal {
	qty := decimal.NewFromInt(quantity)
	if side == SideSell {
		return entry.Sub(mark).Mul(qty)
	}
	return mark.Sub(entry).Mul(qty)
}

// UnrealizedPnL returns the mark-to-market profit of the position
func (p Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	return PnL(p.Side, p.EntryPrice, mark, p.Quantity)
}
