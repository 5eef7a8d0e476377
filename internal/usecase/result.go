package usecase

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

// ErrEvaluationPanic wraps a panic recovered while evaluating one symbol
var ErrEvaluationPanic = errors.New("symbol evaluation panicked")

// SymbolResult is the outcome of one symbol within a pass
type SymbolResult struct {
	Symbol      string
	Observation *entity.Observation
	Prediction  entity.Prediction
	Decision    entity.Decision
	Quantity    int64
	Transition  *entity.Transition

	// UnrealizedPnL is the symbol's open PnL after the step, zero when flat
	UnrealizedPnL decimal.Decimal

	Err error
}

// Failed reports whether the symbol was skipped
func (r SymbolResult) Failed() bool {
	return r.Err != nil
}

// LogPnL is the value written to the trade log PnL column: realized PnL
// for closes, otherwise the symbol's unrealized PnL after the step.
func (r SymbolResult) LogPnL() decimal.Decimal {
	if r.Transition != nil && r.Transition.Kind == entity.TransitionClosed {
		return r.Transition.RealizedPnL
	}
	return r.UnrealizedPnL
}

// TradeLogEntry converts a successful result into its audit record
func (r SymbolResult) TradeLogEntry(at time.Time) entity.TradeLogEntry {
	e := entity.TradeLogEntry{
		Timestamp:  at,
		Symbol:     r.Symbol,
		Action:     r.Decision.Action,
		StopPrice:  r.Decision.StopPrice,
		PnL:        r.LogPnL(),
		Confidence: r.Decision.Confidence,
	}
	if r.Observation != nil {
		e.Price = r.Observation.Close
	}
	if r.Decision.Action.IsActionable() {
		e.Quantity = r.Quantity
	}
	return e
}
