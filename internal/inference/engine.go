// Package inference runs neural network models and returns their raw output
// tensors by name.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Model names understood by the inference service.
const (
	ModelPalm      = "palm"
	ModelLandmarks = "landmarks"
	ModelParts     = "parts"
	ModelClassify  = "classify"
	ModelDetect    = "detect"
)

// Tensors maps output layer names to their flattened values.
type Tensors map[string][]float32

// Get returns the named tensor, checking its length when want > 0.
func (t Tensors) Get(name string, want int) ([]float32, error) {
	v, ok := t[name]
	if !ok {
		return nil, errors.Errorf("output %q missing", name)
	}
	if want > 0 && len(v) != want {
		return nil, errors.Errorf("output %q has %d values, expected %d", name, len(v), want)
	}
	return v, nil
}

// Engine runs a named model on an image already sized for it.
type Engine interface {
	Infer(ctx context.Context, model string, input gocv.Mat) (Tensors, error)
	Close() error
}
