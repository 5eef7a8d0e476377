package entity

import (
	"fmt"
	"strings"
)

// Side represents position side (long or short)
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide parses a side from its textual form, case-insensitively
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return SideBuy, nil
	case "SELL", "SHORT":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Opposite returns the side that closes a position of this side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Action represents the output of the decision engine
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Side maps an actionable decision to a position side.
// HOLD has no side.
func (a Action) Side() (Side, bool) {
	switch a {
	case ActionBuy:
		return SideBuy, true
	case ActionSell:
		return SideSell, true
	default:
		return "", false
	}
}

// IsActionable returns true for BUY and SELL
func (a Action) IsActionable() bool {
	_, ok := a.Side()
	return ok
}
