package decision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

// Config holds decision engine configuration
type Config struct {
	// ConfidenceThreshold is the class probability that must be exceeded to act
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// StopLossPct places the stop this fraction away from the entry price
	StopLossPct float64 `yaml:"stop_loss_pct"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		StopLossPct:         0.005,
	}
}

// Engine turns predictions into BUY, SELL or HOLD.
// It holds no mutable state, so Decide is deterministic and safe for concurrent use.
type Engine struct {
	config   Config
	stopDown decimal.Decimal
	stopUp   decimal.Decimal
}

// NewEngine creates a new decision engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold >= 1 {
		return nil, fmt.Errorf("confidence threshold must be in [0, 1), got %v", cfg.ConfidenceThreshold)
	}
	if cfg.StopLossPct < 0 || cfg.StopLossPct >= 1 {
		return nil, fmt.Errorf("stop loss pct must be in [0, 1), got %v", cfg.StopLossPct)
	}
	pct := decimal.NewFromFloat(cfg.StopLossPct)
	return &Engine{
		config:   cfg,
		stopDown: decimal.NewFromInt(1).Sub(pct),
		stopUp:   decimal.NewFromInt(1).Add(pct),
	}, nil
}

// Name returns engine name
func (e *Engine) Name() string {
	return "confidence_threshold"
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// Decide applies the threshold policy to pred at the given price
func (e *Engine) Decide(pred entity.Prediction, price decimal.Decimal) (entity.Decision, error) {
	if err := pred.Validate(); err != nil {
		return entity.Decision{}, err
	}

	dec := entity.Decision{
		Action:     entity.ActionHold,
		Confidence: pred.Confidence(),
	}

	switch {
	case pred.Label == entity.LabelUp && pred.UpProbability() > e.config.ConfidenceThreshold:
		dec.Action = entity.ActionBuy
		dec.StopPrice = decimal.NewNullDecimal(price.Mul(e.stopDown))
	case pred.Label == entity.LabelDown && pred.DownProbability() > e.config.ConfidenceThreshold:
		dec.Action = entity.ActionSell
		dec.StopPrice = decimal.NewNullDecimal(price.Mul(e.stopUp))
	}

	return dec, nil
}
