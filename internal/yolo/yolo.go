// Package yolo decodes grid-based (YOLOv2 style) detection tensors into
// labeled boxes.
package yolo

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/ayusman/pokayoke/internal/nms"
)

// fieldsPerAnchor is tx, ty, tw, th and objectness before the class logits.
const fieldsPerAnchor = 5

// AnchorBox is a prior box size in grid cells.
type AnchorBox struct {
	W, H float64
}

// DefaultAnchorBoxes are the priors of the exported part models.
var DefaultAnchorBoxes = []AnchorBox{
	{0.573, 0.677},
	{1.87, 2.06},
	{3.34, 5.47},
	{7.88, 3.53},
	{9.77, 9.17},
}

// Config describes a detection model output and its post-processing.
type Config struct {
	// Shape is the output tensor shape [1, anchors*(5+classes), height, width].
	Shape          []int
	Anchors        []AnchorBox
	Labels         []string
	ScoreThreshold float64
	IOUThreshold   float64
	MaxDetections  int
}

// AssemblyConfig returns the settings of the two-class assembly detector.
func AssemblyConfig(labels []string) Config {
	return Config{
		Shape:          []int{1, 35, 13, 13},
		Anchors:        DefaultAnchorBoxes,
		Labels:         labels,
		ScoreThreshold: 0.45,
		IOUThreshold:   0.45,
		MaxDetections:  3,
	}
}

// CountingConfig returns the settings of the eight-class part counter.
func CountingConfig(labels []string) Config {
	return Config{
		Shape:          []int{1, 65, 13, 13},
		Anchors:        DefaultAnchorBoxes,
		Labels:         labels,
		ScoreThreshold: 0.5,
		IOUThreshold:   0.3,
		MaxDetections:  5,
	}
}

// Boundary is a normalized box. Right and Bottom are derived from the origin and size.
type Boundary struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// NewBoundary builds a boundary from its origin and size.
func NewBoundary(x, y, w, h float64) Boundary {
	return Boundary{Left: x, Top: y, Width: w, Height: h, Right: x + w, Bottom: y + h}
}

// Detection is a labeled box.
type Detection struct {
	Label       string   `json:"label"`
	Class       int      `json:"class"`
	Probability float64  `json:"probability"`
	Box         Boundary `json:"box"`
}

// Detector decodes output tensors of one model.
type Detector struct {
	cfg        Config
	numClasses int
	height     int
	width      int
}

// NewDetector validates cfg against the tensor layout.
func NewDetector(cfg Config) (*Detector, error) {
	if len(cfg.Shape) != 4 || cfg.Shape[0] != 1 {
		return nil, errors.Errorf("expected output shape [1 C H W], got %v", cfg.Shape)
	}
	if len(cfg.Anchors) == 0 {
		return nil, errors.New("at least one anchor box is required")
	}
	channels, height, width := cfg.Shape[1], cfg.Shape[2], cfg.Shape[3]
	if height <= 0 || width <= 0 {
		return nil, errors.Errorf("grid must be positive, got %dx%d", width, height)
	}
	if channels%len(cfg.Anchors) != 0 {
		return nil, errors.Errorf("%d channels cannot be split over %d anchors", channels, len(cfg.Anchors))
	}
	numClasses := channels/len(cfg.Anchors) - fieldsPerAnchor
	if numClasses <= 0 {
		return nil, errors.Errorf("%d channels leave no room for classes", channels)
	}
	if len(cfg.Labels) < numClasses {
		return nil, errors.Errorf("model has %d classes but only %d labels", numClasses, len(cfg.Labels))
	}
	if cfg.MaxDetections <= 0 {
		return nil, errors.Errorf("max detections must be positive, got %d", cfg.MaxDetections)
	}
	return &Detector{cfg: cfg, numClasses: numClasses, height: height, width: width}, nil
}

// NumClasses returns the number of classes in the model output.
func (d *Detector) NumClasses() int {
	return d.numClasses
}

// Detect decodes one output tensor. The result is sorted by probability and
// holds at most MaxDetections entries.
func (d *Detector) Detect(output []float32) ([]Detection, error) {
	t, err := d.toTensor(output)
	if err != nil {
		return nil, err
	}

	boxes, probs, err := d.extract(t)
	if err != nil {
		return nil, err
	}

	// keep candidates above the threshold, best first
	var idx []int
	maxProbs := make([]float64, len(probs))
	for i, p := range probs {
		maxProbs[i] = floats.Max(p)
		if maxProbs[i] > d.cfg.ScoreThreshold {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return maxProbs[idx[a]] > maxProbs[idx[b]] })

	candBoxes := make([]nms.Box, len(idx))
	candProbs := make([][]float64, len(idx))
	for i, j := range idx {
		candBoxes[i] = boxes[j]
		candProbs[i] = probs[j]
	}

	selected := nms.SuppressPerClass(candBoxes, candProbs, nms.PerClassConfig{
		ScoreThreshold: d.cfg.ScoreThreshold,
		IOUThreshold:   d.cfg.IOUThreshold,
		MaxDetections:  d.cfg.MaxDetections,
	})

	out := make([]Detection, 0, len(selected))
	for _, s := range selected {
		b := candBoxes[s.Index]
		out = append(out, Detection{
			Label:       d.cfg.Labels[s.Class],
			Class:       s.Class,
			Probability: s.Probability,
			Box:         NewBoundary(b.X, b.Y, b.W, b.H),
		})
	}
	return out, nil
}

func (d *Detector) toTensor(output []float32) (*tensor.Dense, error) {
	want := 1
	for _, s := range d.cfg.Shape {
		want *= s
	}
	if len(output) != want {
		return nil, errors.Errorf("expected %d output values for shape %v, got %d", want, d.cfg.Shape, len(output))
	}
	return tensor.New(tensor.WithShape(d.cfg.Shape...), tensor.WithBacking(output)), nil
}

// extract returns one box and class probability vector per (cell, anchor),
// ordered row, column, anchor.
func (d *Detector) extract(t *tensor.Dense) ([]nms.Box, [][]float64, error) {
	stride := fieldsPerAnchor + d.numClasses
	n := d.height * d.width * len(d.cfg.Anchors)
	boxes := make([]nms.Box, 0, n)
	probs := make([][]float64, 0, n)

	field := make([]float64, stride)
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			for a, prior := range d.cfg.Anchors {
				for f := 0; f < stride; f++ {
					v, err := t.At(0, a*stride+f, y, x)
					if err != nil {
						return nil, nil, errors.Wrapf(err, "reading anchor %d field %d at (%d, %d)", a, f, x, y)
					}
					field[f] = float64(v.(float32))
				}

				w := math.Exp(field[2]) * prior.W / float64(d.width)
				h := math.Exp(field[3]) * prior.H / float64(d.height)
				cx := (sigmoid(field[0]) + float64(x)) / float64(d.width)
				cy := (sigmoid(field[1]) + float64(y)) / float64(d.height)
				boxes = append(boxes, nms.Box{X: cx - w/2, Y: cy - h/2, W: w, H: h})

				p := softmax(field[fieldsPerAnchor:])
				floats.Scale(sigmoid(field[4]), p)
				probs = append(probs, p)
			}
		}
	}
	return boxes, probs, nil
}

func sigmoid(x float64) float64 {
	if x > 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softmax returns a new slice; the max is subtracted before exponentiating.
func softmax(in []float64) []float64 {
	out := make([]float64, len(in))
	m := floats.Max(in)
	for i, x := range in {
		out[i] = math.Exp(x - m)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
