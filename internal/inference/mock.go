package inference

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockEngine is a test Engine returning preset tensors per model.
type MockEngine struct {
	mu      sync.Mutex
	outputs map[string]Tensors
	err     error
	calls   map[string]int
	sizes   map[string][2]int
}

// NewMockEngine creates an empty MockEngine.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		outputs: make(map[string]Tensors),
		calls:   make(map[string]int),
		sizes:   make(map[string][2]int),
	}
}

// SetOutput sets the tensors returned for model.
func (m *MockEngine) SetOutput(model string, t Tensors) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[model] = t
}

// SetError sets the error returned by every Infer call.
func (m *MockEngine) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times model was run.
func (m *MockEngine) Calls(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[model]
}

// LastSize returns the width and height of the last input given to model.
func (m *MockEngine) LastSize(model string) (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sizes[model]
	return s[0], s[1]
}

// Infer returns the preset output or error.
func (m *MockEngine) Infer(ctx context.Context, model string, input gocv.Mat) (Tensors, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[model]++
	m.sizes[model] = [2]int{input.Cols(), input.Rows()}
	if m.err != nil {
		return nil, m.err
	}
	out, ok := m.outputs[model]
	if !ok {
		return Tensors{}, nil
	}
	return out, nil
}

// Close is a no-op.
func (m *MockEngine) Close() error {
	return nil
}
