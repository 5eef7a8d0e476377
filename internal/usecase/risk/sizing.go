package risk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrZeroStopDistance is returned when price * stop_loss_pct is zero, which
// would make the risk-based quantity infinite.
var ErrZeroStopDistance = errors.New("stop loss distance is zero")

// Policy names a sizing strategy
type Policy string

const (
	PolicyRiskBased Policy = "risk"
	PolicyFixed     Policy = "fixed"
)

// ParsePolicy parses a sizing policy name; empty means risk-based
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyRiskBased, "risk-based", "risk_based":
		return PolicyRiskBased, nil
	case PolicyFixed:
		return PolicyFixed, nil
	default:
		return "", fmt.Errorf("unknown sizing policy %q", s)
	}
}

// Sizer converts a price into a trade quantity
type Sizer interface {
	Name() string
	Size(price decimal.Decimal) (int64, error)
}

// Config holds position sizing configuration
type Config struct {
	Policy        Policy
	Capital       float64
	RiskPerTrade  float64
	StopLossPct   float64
	FixedQuantity int64
}

// DefaultConfig returns default sizing configuration
func DefaultConfig() *Config {
	return &Config{
		Policy:        PolicyRiskBased,
		Capital:       10000,
		RiskPerTrade:  0.01,  // 1%
		StopLossPct:   0.005, // 0.5%
		FixedQuantity: 10,
	}
}

// NewSizer builds the sizer selected by cfg.Policy
func NewSizer(cfg *Config) (Sizer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch cfg.Policy {
	case PolicyFixed:
		return NewFixed(cfg.FixedQuantity)
	case PolicyRiskBased, "":
		return NewRiskBased(cfg.Capital, cfg.RiskPerTrade, cfg.StopLossPct)
	default:
		return nil, fmt.Errorf("unknown sizing policy %q", cfg.Policy)
	}
}

// RiskBased sizes positions so that hitting the stop loses capital * risk_per_trade
type RiskBased struct {
	dollarRisk  decimal.Decimal
	stopLossPct decimal.Decimal
}

// NewRiskBased creates a risk-based sizer
func NewRiskBased(capital, riskPerTrade, stopLossPct float64) (*RiskBased, error) {
	if capital <= 0 {
		return nil, fmt.Errorf("capital must be positive, got %v", capital)
	}
	if riskPerTrade <= 0 || riskPerTrade > 1 {
		return nil, fmt.Errorf("risk per trade must be in (0, 1], got %v", riskPerTrade)
	}
	if stopLossPct < 0 {
		return nil, fmt.Errorf("stop loss pct must not be negative, got %v", stopLossPct)
	}
	return &RiskBased{
		dollarRisk:  decimal.NewFromFloat(capital).Mul(decimal.NewFromFloat(riskPerTrade)),
		stopLossPct: decimal.NewFromFloat(stopLossPct),
	}, nil
}

// Name returns sizer name
func (r *RiskBased) Name() string {
	return string(PolicyRiskBased)
}

// DollarRisk returns capital * risk_per_trade
func (r *RiskBased) DollarRisk() decimal.Decimal {
	return r.dollarRisk
}

// Size returns max(floor(dollar_risk / (price * stop_loss_pct)), 1)
func (r *RiskBased) Size(price decimal.Decimal) (int64, error) {
	stopAmount := price.Mul(r.stopLossPct)
	if !stopAmount.IsPositive() {
		return 0, fmt.Errorf("%w: price=%s stop_loss_pct=%s", ErrZeroStopDistance, price, r.stopLossPct)
	}
	qty := r.dollarRisk.Div(stopAmount).Floor().IntPart()
	if qty < 1 {
		qty = 1
	}
	return qty, nil
}

// Fixed always trades the same quantity
type Fixed struct {
	quantity int64
}

// NewFixed creates a fixed-quantity sizer
func NewFixed(quantity int64) (*Fixed, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("fixed quantity must be at least 1, got %d", quantity)
	}
	return &Fixed{quantity: quantity}, nil
}

// Name returns sizer name
func (f *Fixed) Name() string {
	return string(PolicyFixed)
}

// Size returns the configured quantity
func (f *Fixed) Size(price decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, fmt.Errorf("price must be positive, got %s", price)
	}
	return f.quantity, nil
}
