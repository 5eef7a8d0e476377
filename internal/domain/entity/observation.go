package entity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingFeature is returned when the observation lacks a feature the model needs
	ErrMissingFeature = errors.New("missing feature")
	// ErrInvalidFeature is returned for NaN or infinite feature values
	ErrInvalidFeature = errors.New("invalid feature value")
)

// Observation is the latest priced, feature-enriched row for a symbol
type Observation struct {
	Symbol    string
	Timestamp time.Time
	Close     decimal.Decimal
	Features  map[string]float64
}

// Vector returns feature values in the given order
func (o *Observation) Vector(names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, ok := o.Features[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidFeature, name, v)
		}
		out[i] = v
	}
	return out, nil
}
