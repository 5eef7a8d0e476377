package service

import (
	"github.com/zono819/signal-trader/internal/domain/entity"
)

// Predictor is the capability the loop needs from a model artifact.
// Implementations must be safe for concurrent use.
type Predictor interface {
	// Name returns a short description of the loaded model
	Name() string

	// FeatureNames returns the ordered feature columns the model expects
	FeatureNames() []string

	// Predict returns the class label and per-class probabilities
	Predict(features []float64) (entity.Prediction, error)

	// Close releases model resources
	Close() error
}
