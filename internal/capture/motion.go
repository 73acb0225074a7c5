package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion detection defaults
const (
	// DefaultBlurSize is the kernel size for Gaussian blur (21x21)
	DefaultBlurSize = 21
	// DefaultDiffThreshold is the binary threshold for difference detection
	DefaultDiffThreshold = 25
	// DefaultMotionThreshold is the percentage of changed pixels counted as motion
	DefaultMotionThreshold = 1.0
)

// MotionConfig configures a MotionDetector.
type MotionConfig struct {
	// Threshold is the percentage of pixels that must change to detect motion.
	Threshold     float64
	BlurSize      int
	DiffThreshold float32
	// ROI limits detection to the work area. Empty means the whole frame.
	ROI image.Rectangle
}

// DefaultMotionConfig returns the whole-frame configuration.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Threshold:     DefaultMotionThreshold,
		BlurSize:      DefaultBlurSize,
		DiffThreshold: DefaultDiffThreshold,
	}
}

// MotionDetector detects motion between consecutive frames inside the work
// area, using frame differencing with Gaussian blur for noise reduction.
type MotionDetector struct {
	config      MotionConfig
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a new MotionDetector.
func NewMotionDetector(config MotionConfig) *MotionDetector {
	if config.BlurSize <= 0 || config.BlurSize%2 == 0 {
		config.BlurSize = DefaultBlurSize
	}
	if config.DiffThreshold <= 0 {
		config.DiffThreshold = DefaultDiffThreshold
	}
	return &MotionDetector{
		config:   config,
		prevGray: gocv.NewMat(),
	}
}

// Detect analyzes a frame for motion compared to the previous frame.
// Returns whether motion was detected and the percentage of pixels that changed.
// The first frame only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	area := *frame
	roi := m.config.ROI.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if !roi.Empty() {
		area = frame.Region(roi)
		defer area.Close()
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if area.Channels() > 1 {
		gocv.CvtColor(area, &gray, gocv.ColorBGRToGray)
	} else {
		area.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := m.config.BlurSize
	gocv.GaussianBlur(gray, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	// a changed ROI or frame size restarts the baseline
	if !m.initialized || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, m.config.DiffThreshold, 255, gocv.ThresholdBinary)

	changePercent := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)
	return changePercent > m.config.Threshold, changePercent
}

// SetROI restricts detection to roi and resets the baseline.
func (m *MotionDetector) SetROI(roi image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.ROI = roi
	m.initialized = false
}

// Reset clears the motion detector state, allowing it to be reused
// with a new baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initialized = false
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prevGray.Close()
	m.prevGray = gocv.NewMat()
	m.initialized = false
}

// SetThreshold sets the motion detection threshold.
// Values less than or equal to 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.Threshold = threshold
}
