package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

const logisticSchema = `{
  "type": "object",
  "required": ["type", "features", "weights", "bias"],
  "properties": {
    "type": {"const": "logistic"},
    "features": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "weights": {"type": "array", "minItems": 1, "items": {"type": "number"}},
    "bias": {"type": "number"},
    "scaler": {
      "type": "object",
      "required": ["mean", "scale"],
      "properties": {
        "mean": {"type": "array", "items": {"type": "number"}},
        "scale": {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0}}
      }
    }
  }
}`

var compiledLogisticSchema = jsonschema.MustCompileString("logistic.schema.json", logisticSchema)

// Logistic is a binary logistic-regression model exported as JSON:
//
//	{"type":"logistic","features":[...],"weights":[...],"bias":b,
//	 "scaler":{"mean":[...],"scale":[...]}}
//
// The optional scaler standardises inputs before the dot product.
type Logistic struct {
	features []string
	weights  []float64
	bias     float64
	mean     []float64
	scale    []float64
}

// LoadLogistic reads and validates a JSON logistic artifact
func LoadLogistic(path string) (*Logistic, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	return ParseLogistic(raw)
}

// ParseLogistic validates raw against the artifact schema and builds the model
func ParseLogistic(raw []byte) (*Logistic, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("model artifact is not valid JSON")
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := compiledLogisticSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("model artifact schema: %w", err)
	}

	parsed := gjson.ParseBytes(raw)
	m := &Logistic{
		features: stringList(parsed.Get("features")),
		weights:  floats(parsed.Get("weights")),
		bias:     parsed.Get("bias").Float(),
	}
	if len(m.weights) != len(m.features) {
		return nil, fmt.Errorf("model artifact has %d weights for %d features", len(m.weights), len(m.features))
	}
	if scaler := parsed.Get("scaler"); scaler.Exists() {
		m.mean = floats(scaler.Get("mean"))
		m.scale = floats(scaler.Get("scale"))
		if len(m.mean) != len(m.features) || len(m.scale) != len(m.features) {
			return nil, fmt.Errorf("model artifact scaler does not match %d features", len(m.features))
		}
	}
	return m, nil
}

// Name returns a short model description
func (m *Logistic) Name() string {
	return fmt.Sprintf("logistic(%s)", strings.Join(m.features, ","))
}

// FeatureNames returns the ordered input columns
func (m *Logistic) FeatureNames() []string {
	return append([]string(nil), m.features...)
}

// Predict returns label 1 when P(up) > 0.5
func (m *Logistic) Predict(x []float64) (entity.Prediction, error) {
	if len(x) != len(m.weights) {
		return entity.Prediction{}, fmt.Errorf("model expects %d features, got %d", len(m.weights), len(x))
	}
	z := m.bias
	for i, v := range x {
		if m.scale != nil {
			v = (v - m.mean[i]) / m.scale[i]
		}
		z += m.weights[i] * v
	}
	up := 1 / (1 + math.Exp(-z))

	pred := entity.Prediction{Probabilities: [2]float64{1 - up, up}}
	if up > 0.5 {
		pred.Label = entity.LabelUp
	}
	if err := pred.Validate(); err != nil {
		return entity.Prediction{}, err
	}
	return pred, nil
}

// Close is a no-op
func (m *Logistic) Close() error {
	return nil
}

func floats(r gjson.Result) []float64 {
	arr := r.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		out[i] = v.Float()
	}
	return out
}

func stringList(r gjson.Result) []string {
	arr := r.Array()
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = v.String()
	}
	return out
}
