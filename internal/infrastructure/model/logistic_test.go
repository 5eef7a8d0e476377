package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

const artifact = `{
  "type": "logistic",
  "features": ["returns", "RSI_14"],
  "weights": [2.0, -0.5],
  "bias": 0.1
}`

func TestParseLogistic_Predict(t *testing.T) {
	m, err := ParseLogistic([]byte(artifact))
	require.NoError(t, err)

	assert.Equal(t, []string{"returns", "RSI_14"}, m.FeatureNames())

	pred, err := m.Predict([]float64{1, 0})
	require.NoError(t, err)

	up := 1 / (1 + math.Exp(-2.1))
	assert.Equal(t, entity.LabelUp, pred.Label)
	assert.InDelta(t, up, pred.UpProbability(), 1e-12)
	assert.InDelta(t, 1.0, pred.UpProbability()+pred.DownProbability(), 1e-12)

	pred, err = m.Predict([]float64{0, 10})
	require.NoError(t, err)
	assert.Equal(t, entity.LabelDown, pred.Label)
	assert.Greater(t, pred.DownProbability(), 0.9)
}

func TestParseLogistic_Scaler(t *testing.T) {
	m, err := ParseLogistic([]byte(`{
  "type": "logistic",
  "features": ["Close"],
  "weights": [1.0],
  "bias": 0,
  "scaler": {"mean": [100], "scale": [10]}
}`))
	require.NoError(t, err)

	pred, err := m.Predict([]float64{100})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pred.UpProbability(), 1e-12)
	assert.Equal(t, entity.LabelDown, pred.Label, "0.5 is not above 0.5")
}

func TestParseLogistic_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Not JSON", `{"type":`},
		{"Wrong type", `{"type":"forest","features":["a"],"weights":[1],"bias":0}`},
		{"Missing bias", `{"type":"logistic","features":["a"],"weights":[1]}`},
		{"Weight not number", `{"type":"logistic","features":["a"],"weights":["x"],"bias":0}`},
		{"Length mismatch", `{"type":"logistic","features":["a","b"],"weights":[1],"bias":0}`},
		{"Zero scale", `{"type":"logistic","features":["a"],"weights":[1],"bias":0,"scaler":{"mean":[0],"scale":[0]}}`},
		{"Scaler mismatch", `{"type":"logistic","features":["a"],"weights":[1],"bias":0,"scaler":{"mean":[0,1],"scale":[1,1]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLogistic([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestLogistic_WrongVectorLength(t *testing.T) {
	m, err := ParseLogistic([]byte(artifact))
	require.NoError(t, err)
	_, err = m.Predict([]float64{1})
	assert.Error(t, err)
}

func TestOpen_Dispatch(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(artifact), 0o644))
	p, err := Open(Options{Path: jsonPath, Features: []string{"ignored"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"returns", "RSI_14"}, p.FeatureNames())
	assert.NoError(t, p.Close())

	pklPath := filepath.Join(dir, "model.pkl")
	require.NoError(t, os.WriteFile(pklPath, []byte("x"), 0o644))
	_, err = Open(Options{Path: pklPath})
	assert.ErrorIs(t, err, ErrUnsupportedArtifact)

	_, err = Open(Options{Path: filepath.Join(dir, "missing.onnx")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Open(Options{})
	assert.Error(t, err)
}
