package detector

import (
	"context"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/nms"
	"github.com/ayusman/pokayoke/internal/palm"
)

// MockDetector is a test implementation of the HandDetector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []Hand
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Hand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// HandAt returns an upright hand whose palm box covers box.
func HandAt(box image.Rectangle) Hand {
	r := palm.Region{
		Score: 0.95,
		Box: nms.Box{
			X: float64(box.Min.X),
			Y: float64(box.Min.Y),
			W: float64(box.Dx()),
			H: float64(box.Dy()),
		},
	}
	cx := float64(box.Min.X+box.Max.X) / 2
	r.Keypoints[0] = palm.Point{X: cx, Y: float64(box.Max.Y)}
	r.Keypoints[2] = palm.Point{X: cx, Y: float64(box.Min.Y)}
	return Hand{
		Region: palm.OrientedRegion{Region: r, RectCenter: palm.Point{X: cx, Y: float64(box.Min.Y+box.Max.Y) / 2}},
		Box:    box,
		Corners: [4]image.Point{
			{box.Min.X, box.Max.Y}, box.Min, {box.Max.X, box.Min.Y}, box.Max,
		},
	}
}
