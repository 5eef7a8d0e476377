package entity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrediction is returned for predictions the decision engine cannot use
var ErrInvalidPrediction = errors.New("invalid prediction")

const (
	LabelDown = 0
	LabelUp   = 1
)

const probabilitySumTolerance = 1e-6

// Prediction is the classifier output for one feature vector
type Prediction struct {
	Label         int
	Probabilities [2]float64
}

// Validate checks label range and that probabilities form a distribution
func (p Prediction) Validate() error {
	if p.Label != LabelDown && p.Label != LabelUp {
		return fmt.Errorf("%w: label %d", ErrInvalidPrediction, p.Label)
	}
	sum := 0.0
	for i, v := range p.Probabilities {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: probability[%d]=%v", ErrInvalidPrediction, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > probabilitySumTolerance {
		return fmt.Errorf("%w: probabilities sum to %v", ErrInvalidPrediction, sum)
	}
	return nil
}

// UpProbability returns the probability of the up class
func (p Prediction) UpProbability() float64 {
	return p.Probabilities[LabelUp]
}

// DownProbability returns the probability of the down class
func (p Prediction) DownProbability() float64 {
	return p.Probabilities[LabelDown]
}

// Confidence returns the probability of the predicted label
func (p Prediction) Confidence() float64 {
	if p.Label == LabelUp {
		return p.UpProbability()
	}
	return p.DownProbability()
}

// Decision is the action taken for one prediction
type Decision struct {
	Action Action
	// StopPrice is valid for BUY and SELL only
	StopPrice  decimal.NullDecimal
	Confidence float64
}

// TradeLogEntry is one immutable audit record
type TradeLogEntry struct {
	Timestamp  time.Time
	Symbol     string
	Price      decimal.Decimal
	Action     Action
	Quantity   int64
	StopPrice  decimal.NullDecimal
	PnL        decimal.Decimal
	Confidence float64
}
