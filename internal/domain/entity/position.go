package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents one open position for a symbol
type Position struct {
	Symbol     string
	Side       Side
	EntryPrice decimal.Decimal
	Quantity   int64
	OpenedAt   time.Time
}

// CostBasis returns entry price times quantity
func (p Position) CostBasis() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// Equal compares every field, using decimal equality for the price
func (p Position) Equal(o Position) bool {
	return p.Symbol == o.Symbol &&
		p.Side == o.Side &&
		p.EntryPrice.Equal(o.EntryPrice) &&
		p.Quantity == o.Quantity &&
		p.OpenedAt.Equal(o.OpenedAt)
}
