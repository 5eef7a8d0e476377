package model

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

var ortInit sync.Mutex

// initORT loads the onnxruntime shared library once per process
func initORT(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = defaultORTLibrary()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime (%s): %w", libPath, err)
	}
	return nil
}

func defaultORTLibrary() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "/usr/lib/libonnxruntime.so"
	}
}

// ONNX runs a classifier exported with skl2onnx (zipmap disabled): one
// float input [1,n], an int64 label [1] and float probabilities [1,2].
type ONNX struct {
	mu       sync.Mutex
	path     string
	features []string
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	label    *ort.Tensor[int64]
	proba    *ort.Tensor[float32]
}

// OpenONNX creates an inference session for opts.Path
func OpenONNX(opts Options) (*ONNX, error) {
	if len(opts.Features) == 0 {
		return nil, fmt.Errorf("onnx model %s: feature list is empty", opts.Path)
	}
	if err := initORT(opts.ORTLibrary); err != nil {
		return nil, err
	}

	n := int64(len(opts.Features))
	input, err := ort.NewTensor(ort.NewShape(1, n), make([]float32, n))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	label, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to create label tensor: %w", err)
	}
	proba, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 2))
	if err != nil {
		input.Destroy()
		label.Destroy()
		return nil, fmt.Errorf("failed to create probability tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.Path,
		[]string{orDefault(opts.InputName, "float_input")},
		[]string{orDefault(opts.LabelOutput, "label"), orDefault(opts.ProbaOutput, "probabilities")},
		[]ort.Value{input}, []ort.Value{label, proba}, nil)
	if err != nil {
		input.Destroy()
		label.Destroy()
		proba.Destroy()
		return nil, fmt.Errorf("failed to create session for %s: %w", opts.Path, err)
	}

	return &ONNX{
		path:     opts.Path,
		features: append([]string(nil), opts.Features...),
		session:  session,
		input:    input,
		label:    label,
		proba:    proba,
	}, nil
}

// Name returns the artifact path
func (m *ONNX) Name() string {
	return "onnx(" + m.path + ")"
}

// FeatureNames returns the ordered input columns
func (m *ONNX) FeatureNames() []string {
	return append([]string(nil), m.features...)
}

// Predict runs one inference. Tensors are shared, so calls are serialised.
func (m *ONNX) Predict(x []float64) (entity.Prediction, error) {
	if len(x) != len(m.features) {
		return entity.Prediction{}, fmt.Errorf("model expects %d features, got %d", len(m.features), len(x))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.input.GetData()
	for i, v := range x {
		data[i] = float32(v)
	}
	if err := m.session.Run(); err != nil {
		return entity.Prediction{}, fmt.Errorf("inference failed: %w", err)
	}

	probs := m.proba.GetData()
	pred := entity.Prediction{
		Label:         int(m.label.GetData()[0]),
		Probabilities: [2]float64{float64(probs[0]), float64(probs[1])},
	}
	if err := pred.Validate(); err != nil {
		return entity.Prediction{}, err
	}
	return pred, nil
}

// Close releases the session and its tensors
func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	errs := []error{m.session.Destroy()}
	m.session = nil
	for _, v := range []interface{ Destroy() error }{m.input, m.label, m.proba} {
		errs = append(errs, v.Destroy())
	}
	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
