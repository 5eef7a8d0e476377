// Package model loads trained classifier artifacts behind service.Predictor.
package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zono819/signal-trader/internal/domain/service"
)

// ErrUnsupportedArtifact is returned for model files with an unknown extension
var ErrUnsupportedArtifact = errors.New("unsupported model artifact")

// Options describes the artifact and how to feed it
type Options struct {
	Path string

	// Features is the ordered input column list. JSON artifacts carry their
	// own list and ignore it.
	Features []string

	InputName   string
	LabelOutput string
	ProbaOutput string

	// ORTLibrary is the onnxruntime shared library path; empty picks the
	// platform default.
	ORTLibrary string
}

// Open loads the artifact at opts.Path, dispatching on its extension
func Open(opts Options) (service.Predictor, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("model path is empty")
	}
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}

	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".json":
		return LoadLogistic(opts.Path)
	case ".onnx":
		return OpenONNX(opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArtifact, opts.Path)
	}
}
