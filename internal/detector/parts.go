package detector

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/inference"
	"github.com/ayusman/pokayoke/internal/yolo"
)

// Part model output layers.
const (
	layerGrid    = "grid"
	layerClasses = "classes"
)

// Part is a grid detection mapped to frame pixels.
type Part struct {
	yolo.Detection
	Rect image.Rectangle `json:"rect"`
}

// PartConfig configures a PartDetector.
type PartConfig struct {
	// Model is the engine model name.
	Model string
	// InputSize is the model input side in pixels.
	InputSize int
	// ROI restricts detection to part of the frame. Empty means the whole frame.
	ROI  image.Rectangle
	Grid yolo.Config
}

// AssemblyPartConfig returns the configuration of the assembly part model.
func AssemblyPartConfig(labels []string) PartConfig {
	return PartConfig{Model: inference.ModelDetect, InputSize: 416, Grid: yolo.AssemblyConfig(labels)}
}

// CountingPartConfig returns the configuration of the counting part model.
func CountingPartConfig(labels []string) PartConfig {
	return PartConfig{Model: inference.ModelParts, InputSize: 416, Grid: yolo.CountingConfig(labels)}
}

// PartDetector finds labeled parts with a grid detection model.
type PartDetector struct {
	engine inference.Engine
	config PartConfig
	grid   *yolo.Detector
}

// NewPartDetector validates the grid configuration and creates a PartDetector.
func NewPartDetector(engine inference.Engine, config PartConfig) (*PartDetector, error) {
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", config.InputSize)
	}
	grid, err := yolo.NewDetector(config.Grid)
	if err != nil {
		return nil, fmt.Errorf("part detector: %w", err)
	}
	return &PartDetector{engine: engine, config: config, grid: grid}, nil
}

// Detect returns the parts found in frame, best first.
func (d *PartDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Part, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}
	region, origin := cropROI(*frame, d.config.ROI)
	defer region.Close()

	square, pad := inference.Letterbox(region)
	defer square.Close()
	input := inference.Resize(square, d.config.InputSize)
	defer input.Close()

	out, err := d.engine.Infer(ctx, d.config.Model, input)
	if err != nil {
		return nil, fmt.Errorf("%s inference: %w", d.config.Model, err)
	}
	raw, err := out.Get(layerGrid, 0)
	if err != nil {
		return nil, err
	}
	dets, err := d.grid.Detect(raw)
	if err != nil {
		return nil, err
	}

	parts := make([]Part, len(dets))
	s := float64(pad.Size)
	for i, det := range dets {
		b := det.Box
		parts[i] = Part{
			Detection: det,
			Rect: image.Rect(
				int(b.Left*s), int(b.Top*s), int(b.Right*s), int(b.Bottom*s),
			).Sub(image.Pt(pad.Left, pad.Top)).Add(origin),
		}
	}
	return parts, nil
}

// Close releases the inference engine.
func (d *PartDetector) Close() error {
	return d.engine.Close()
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	Model     string
	InputSize int
	ROI       image.Rectangle
	Labels    []string
	Threshold float64
	Limit     int
}

// DefaultClassifierConfig returns the assembly step classifier settings.
func DefaultClassifierConfig(labels []string) ClassifierConfig {
	return ClassifierConfig{
		Model:     inference.ModelClassify,
		InputSize: 224,
		Labels:    labels,
		Threshold: 0.6,
		Limit:     1,
	}
}

// Classifier labels a whole frame or region of interest.
type Classifier struct {
	engine inference.Engine
	config ClassifierConfig
}

// NewClassifier creates a Classifier.
func NewClassifier(engine inference.Engine, config ClassifierConfig) (*Classifier, error) {
	if len(config.Labels) == 0 {
		return nil, fmt.Errorf("classifier needs labels")
	}
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", config.InputSize)
	}
	return &Classifier{engine: engine, config: config}, nil
}

// Classify returns the labels whose probability exceeds the threshold, best first.
func (c *Classifier) Classify(ctx context.Context, frame *gocv.Mat) ([]yolo.Classification, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}
	region, _ := cropROI(*frame, c.config.ROI)
	defer region.Close()
	input := inference.Resize(region, c.config.InputSize)
	defer input.Close()

	out, err := c.engine.Infer(ctx, c.config.Model, input)
	if err != nil {
		return nil, fmt.Errorf("%s inference: %w", c.config.Model, err)
	}
	raw, err := out.Get(layerClasses, len(c.config.Labels))
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(raw))
	for i, v := range raw {
		probs[i] = float64(v)
	}
	return yolo.Classify(probs, c.config.Labels, c.config.Threshold, c.config.Limit)
}

// cropROI returns a copy of the roi inside frame and its origin. An empty or
// out-of-frame roi yields the whole frame.
func cropROI(frame gocv.Mat, roi image.Rectangle) (gocv.Mat, image.Point) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	roi = roi.Intersect(bounds)
	if roi.Empty() {
		return frame.Clone(), image.Point{}
	}
	sub := frame.Region(roi)
	defer sub.Close()
	return sub.Clone(), roi.Min
}
