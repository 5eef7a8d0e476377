package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

// PositionView is an open position valued at the latest known price
type PositionView struct {
	Symbol        string              `json:"symbol"`
	Side          entity.Side         `json:"side"`
	EntryPrice    decimal.Decimal     `json:"entry_price"`
	Quantity      int64               `json:"quantity"`
	OpenedAt      time.Time           `json:"opened_at"`
	MarkPrice     decimal.NullDecimal `json:"mark_price"`
	UnrealizedPnL decimal.NullDecimal `json:"unrealized_pnl"`
}

// SymbolSummary is the JSON form of a SymbolResult
type SymbolSummary struct {
	Symbol     string              `json:"symbol"`
	Action     entity.Action       `json:"action,omitempty"`
	Price      decimal.NullDecimal `json:"price"`
	Quantity   int64               `json:"quantity"`
	StopPrice  decimal.NullDecimal `json:"stop_price"`
	Confidence float64             `json:"confidence"`
	Transition string              `json:"transition,omitempty"`
	PnL        decimal.Decimal     `json:"pnl"`
	Error      string              `json:"error,omitempty"`
}

// IterationReport describes one completed pass
type IterationReport struct {
	RunID         string          `json:"run_id"`
	Iteration     int64           `json:"iteration"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Symbols       []SymbolSummary `json:"symbols"`
	Positions     []PositionView  `json:"positions"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MissingMarks  []string        `json:"missing_marks,omitempty"`
}

// Marks collects the latest close of every symbol that was read this pass
func Marks(results []SymbolResult) map[string]decimal.Decimal {
	marks := make(map[string]decimal.Decimal, len(results))
	for _, r := range results {
		if r.Observation != nil {
			marks[r.Symbol] = r.Observation.Close
		}
	}
	return marks
}

// PositionViews values every open position at marks; positions without a
// mark keep null price fields.
func PositionViews(ledger entity.Ledger, marks map[string]decimal.Decimal) []PositionView {
	positions := ledger.Positions()
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		v := PositionView{
			Symbol:     p.Symbol,
			Side:       p.Side,
			EntryPrice: p.EntryPrice,
			Quantity:   p.Quantity,
			OpenedAt:   p.OpenedAt,
		}
		if mark, ok := marks[p.Symbol]; ok {
			v.MarkPrice = decimal.NewNullDecimal(mark)
			v.UnrealizedPnL = decimal.NewNullDecimal(p.UnrealizedPnL(mark))
		}
		views = append(views, v)
	}
	return views
}

func summarize(r SymbolResult) SymbolSummary {
	s := SymbolSummary{Symbol: r.Symbol}
	if r.Err != nil {
		s.Error = r.Err.Error()
		return s
	}
	s.Action = r.Decision.Action
	s.StopPrice = r.Decision.StopPrice
	s.Confidence = r.Decision.Confidence
	s.PnL = r.LogPnL()
	if r.Decision.Action.IsActionable() {
		s.Quantity = r.Quantity
	}
	if r.Observation != nil {
		s.Price = decimal.NewNullDecimal(r.Observation.Close)
	}
	if r.Transition != nil {
		s.Transition = string(r.Transition.Kind)
	}
	return s
}

// NewIterationReport assembles the report of a finished pass
func NewIterationReport(runID string, state State, results []SymbolResult, started, finished time.Time) IterationReport {
	marks := Marks(results)
	unrealized, missing := state.Ledger.Unrealized(marks)

	rep := IterationReport{
		RunID:         runID,
		Iteration:     state.Iteration,
		StartedAt:     started,
		FinishedAt:    finished,
		Symbols:       make([]SymbolSummary, 0, len(results)),
		Positions:     PositionViews(state.Ledger, marks),
		RealizedPnL:   state.RealizedPnL,
		UnrealizedPnL: unrealized,
		MissingMarks:  missing,
	}
	for _, r := range results {
		rep.Symbols = append(rep.Symbols, summarize(r))
	}
	return rep
}
