package entity

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidTrade is returned when a transition is requested with a
// non-positive price or quantity.
var ErrInvalidTrade = errors.New("invalid trade")

// ReentryPolicy controls what a same-side decision does to an open position
type ReentryPolicy string

const (
	// ReentryReplace overwrites entry price and quantity, discarding the prior cost basis
	ReentryReplace ReentryPolicy = "replace"
	// ReentryAccumulate adds to the position at the quantity-weighted average price
	ReentryAccumulate ReentryPolicy = "accumulate"
)

// ParseReentryPolicy parses a policy name; empty means replace
func ParseReentryPolicy(s string) (ReentryPolicy, error) {
	switch ReentryPolicy(s) {
	case "", ReentryReplace:
		return ReentryReplace, nil
	case ReentryAccumulate:
		return ReentryAccumulate, nil
	default:
		return "", fmt.Errorf("unknown reentry policy %q", s)
	}
}

// TransitionKind describes what Apply did to the ledger
type TransitionKind string

const (
	TransitionOpened    TransitionKind = "opened"
	TransitionReentered TransitionKind = "reentered"
	TransitionClosed    TransitionKind = "closed"
)

// Transition is the outcome of applying one decision to the ledger
type Transition struct {
	Kind TransitionKind
	// Position is the open position after the transition; nil after a close
	Position *Position
	// Previous is the position before the transition; nil when opening
	Previous *Position
	// RealizedPnL is set on close only
	RealizedPnL decimal.Decimal
}

// Ledger maps symbol to its single open position.
// The zero value is an empty ledger. Copies share storage; use Clone
// before mutating a ledger that somebody else holds.
type Ledger struct {
	positions map[string]Position
}

// NewLedger builds a ledger from positions, rejecting duplicates and invalid entries
func NewLedger(positions ...Position) (Ledger, error) {
	l := Ledger{positions: make(map[string]Position, len(positions))}
	for _, p := range positions {
		if p.Symbol == "" {
			return Ledger{}, fmt.Errorf("%w: empty symbol", ErrInvalidTrade)
		}
		if _, dup := l.positions[p.Symbol]; dup {
			return Ledger{}, fmt.Errorf("%w: duplicate position for %s", ErrInvalidTrade, p.Symbol)
		}
		if p.Side != SideBuy && p.Side != SideSell {
			return Ledger{}, fmt.Errorf("%w: %s has side %q", ErrInvalidTrade, p.Symbol, p.Side)
		}
		if !p.EntryPrice.IsPositive() || p.Quantity < 1 {
			return Ledger{}, fmt.Errorf("%w: %s entry=%s qty=%d", ErrInvalidTrade, p.Symbol, p.EntryPrice, p.Quantity)
		}
		l.positions[p.Symbol] = p
	}
	return l, nil
}

// Clone returns an independent copy
func (l Ledger) Clone() Ledger {
	out := Ledger{positions: make(map[string]Position, len(l.positions))}
	for k, v := range l.positions {
		out.positions[k] = v
	}
	return out
}

// Len returns the number of open positions
func (l Ledger) Len() int {
	return len(l.positions)
}

// IsEmpty returns true when there are no open positions
func (l Ledger) IsEmpty() bool {
	return len(l.positions) == 0
}

// Get returns the open position for symbol
func (l Ledger) Get(symbol string) (Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// Positions returns open positions sorted by symbol
func (l Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Equal reports whether both ledgers hold field-for-field equal positions
func (l Ledger) Equal(o Ledger) bool {
	if len(l.positions) != len(o.positions) {
		return false
	}
	for sym, p := range l.positions {
		q, ok := o.positions[sym]
		if !ok || !p.Equal(q) {
			return false
		}
	}
	return true
}

// Apply runs one actionable decision through the position state machine:
//
//	NONE  + side          -> OPEN(side)
//	OPEN(side) + side     -> OPEN(side), re-entry per policy
//	OPEN(side) + opposite -> NONE, realized PnL at price
//
// HOLD never reaches the ledger.
func (l *Ledger) Apply(symbol string, side Side, price decimal.Decimal, quantity int64, at time.Time, policy ReentryPolicy) (Transition, error) {
	if side != SideBuy && side != SideSell {
		return Transition{}, fmt.Errorf("%w: side %q", ErrInvalidTrade, side)
	}
	if !price.IsPositive() {
		return Transition{}, fmt.Errorf("%w: price %s", ErrInvalidTrade, price)
	}
	if l.positions == nil {
		l.positions = make(map[string]Position)
	}

	existing, open := l.positions[symbol]
	if open && existing.Side.Opposite() == side {
		delete(l.positions, symbol)
		prev := existing
		return Transition{
			Kind:        TransitionClosed,
			Previous:    &prev,
			RealizedPnL: existing.UnrealizedPnL(price),
		}, nil
	}

	if quantity < 1 {
		return Transition{}, fmt.Errorf("%w: quantity %d", ErrInvalidTrade, quantity)
	}

	if !open {
		p := Position{Symbol: symbol, Side: side, EntryPrice: price, Quantity: quantity, OpenedAt: at}
		l.positions[symbol] = p
		return Transition{Kind: TransitionOpened, Position: &p}, nil
	}

	prev := existing
	next := existing
	switch policy {
	case ReentryAccumulate:
		total := existing.Quantity + quantity
		cost := existing.CostBasis().Add(price.Mul(decimal.NewFromInt(quantity)))
		next.EntryPrice = cost.Div(decimal.NewFromInt(total))
		next.Quantity = total
	default:
		next.EntryPrice = price
		next.Quantity = quantity
		next.OpenedAt = at
	}
	l.positions[symbol] = next
	return Transition{Kind: TransitionReentered, Position: &next, Previous: &prev}, nil
}

// Unrealized sums mark-to-market PnL over open positions that have a price in
// marks. Symbols without a mark are returned in missing, sorted.
func (l Ledger) Unrealized(marks map[string]decimal.Decimal) (total decimal.Decimal, missing []string) {
	for _, p := range l.Positions() {
		mark, ok := marks[p.Symbol]
		if !ok {
			missing = append(missing, p.Symbol)
			continue
		}
		total = total.Add(p.UnrealizedPnL(mark))
	}
	return total, missing
}
