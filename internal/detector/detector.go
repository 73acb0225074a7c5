// Package detector finds hands and parts in color frames by running models
// through an inference engine and decoding their outputs.
package detector

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/palm"
)

// Hand is a detected hand: its palm region in frame pixels and, when the
// landmark model ran and passed its threshold, the 21 landmarks.
type Hand struct {
	Region palm.OrientedRegion
	// Box is the palm box mapped onto the original frame.
	Box image.Rectangle
	// Corners is the oriented hand crop on the original frame.
	Corners   [4]image.Point
	Landmarks *HandLandmarks
}

// HandDetector defines the interface for hand detection implementations.
type HandDetector interface {
	// Detect analyzes a video frame and returns the detected hands.
	// Returns an empty slice if no hands are detected.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Hand, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// PalmInputSize is the palm model input side in pixels.
	PalmInputSize int

	// PalmScoreThreshold is the minimum palm probability (0.0-1.0).
	PalmScoreThreshold float64

	// PalmNMSThreshold is the IoU above which overlapping palms are dropped.
	PalmNMSThreshold float64

	// Rect controls how palm boxes grow into hand crops.
	Rect palm.RectConfig

	// Landmarks enables the second-stage landmark model.
	Landmarks bool

	// LandmarkInputSize is the landmark model input side in pixels.
	LandmarkInputSize int

	// LandmarkScoreThreshold is the minimum hand presence score (0.0-1.0).
	LandmarkScoreThreshold float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		PalmInputSize:          128,
		PalmScoreThreshold:     0.6,
		PalmNMSThreshold:       0.3,
		Rect:                   palm.DefaultRectConfig(),
		Landmarks:              false,
		LandmarkInputSize:      224,
		LandmarkScoreThreshold: 0.5,
	}
}
