package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
	"github.com/zono819/signal-trader/internal/domain/repository"
)

// State is everything the loop carries from one pass to the next
type State struct {
	Ledger      entity.Ledger
	RealizedPnL decimal.Decimal
	Iteration   int64
}

// NewState returns a cold-start state
func NewState() State {
	l, _ := entity.NewLedger()
	return State{Ledger: l}
}

// StateFromSnapshot restores the loop state from a persisted snapshot
func StateFromSnapshot(snap repository.Snapshot) State {
	return State{Ledger: snap.Ledger.Clone(), RealizedPnL: snap.RealizedPnL}
}

// Clone returns a copy whose ledger can be mutated independently
func (s State) Clone() State {
	s.Ledger = s.Ledger.Clone()
	return s
}
