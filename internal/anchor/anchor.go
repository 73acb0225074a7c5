// Package anchor generates the SSD anchor grid used by the palm detector.
package anchor

import (
	"math"

	"github.com/pkg/errors"
)

// Anchor is a prior box in normalized image coordinates.
type Anchor struct {
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// Options configures anchor generation.
type Options struct {
	NumLayers                    int
	MinScale                     float64
	MaxScale                     float64
	InputHeight                  int
	InputWidth                   int
	OffsetX                      float64
	OffsetY                      float64
	Strides                      []int
	AspectRatios                 []float64
	ReduceBoxesInLowestLayer     bool
	InterpolatedScaleAspectRatio float64
	FixedAnchorSize              bool
}

// PalmOptions returns the options of the 128x128 palm detection model.
func PalmOptions() Options {
	return Options{
		NumLayers:                    4,
		MinScale:                     0.1484375,
		MaxScale:                     0.75,
		InputHeight:                  128,
		InputWidth:                   128,
		OffsetX:                      0.5,
		OffsetY:                      0.5,
		Strides:                      []int{8, 16, 16, 16},
		AspectRatios:                 []float64{1.0},
		ReduceBoxesInLowestLayer:     false,
		InterpolatedScaleAspectRatio: 1.0,
		FixedAnchorSize:              true,
	}
}

// Validate reports a configuration error, if any.
func (o Options) Validate() error {
	if len(o.Strides) == 0 {
		return errors.New("anchor options need at least one stride")
	}
	if o.NumLayers != len(o.Strides) {
		return errors.Errorf("num layers (%d) does not match strides (%d)", o.NumLayers, len(o.Strides))
	}
	if o.InputHeight <= 0 || o.InputWidth <= 0 {
		return errors.Errorf("input size must be positive, got %dx%d", o.InputWidth, o.InputHeight)
	}
	for i, s := range o.Strides {
		if s <= 0 {
			return errors.Errorf("stride %d must be positive, got %d", i, s)
		}
	}
	if o.MinScale <= 0 || o.MinScale > o.MaxScale {
		return errors.Errorf("invalid scale range [%v, %v]", o.MinScale, o.MaxScale)
	}
	if len(o.AspectRatios) == 0 {
		return errors.New("anchor options need at least one aspect ratio")
	}
	for _, r := range o.AspectRatios {
		if r <= 0 {
			return errors.Errorf("aspect ratio must be positive, got %v", r)
		}
	}
	return nil
}

// Generate builds the anchor grid. The order is layer group, then row, column
// and anchor within the cell; decoders index anchors by this position.
func Generate(opts Options) ([]Anchor, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "cannot generate anchors")
	}

	var anchors []Anchor
	n := len(opts.Strides)
	layer := 0
	for layer < n {
		var ratios, scales []float64

		last := layer
		for last < n && opts.Strides[last] == opts.Strides[layer] {
			scale := layerScale(opts.MinScale, opts.MaxScale, last, n)
			if last == 0 && opts.ReduceBoxesInLowestLayer {
				ratios = append(ratios, 1.0, 2.0, 0.5)
				scales = append(scales, 0.1, scale, scale)
			} else {
				for _, r := range opts.AspectRatios {
					ratios = append(ratios, r)
					scales = append(scales, scale)
				}
				if opts.InterpolatedScaleAspectRatio > 0 {
					next := 1.0
					if last < n-1 {
						next = layerScale(opts.MinScale, opts.MaxScale, last+1, n)
					}
					scales = append(scales, math.Sqrt(scale*next))
					ratios = append(ratios, opts.InterpolatedScaleAspectRatio)
				}
			}
			last++
		}

		widths := make([]float64, len(ratios))
		heights := make([]float64, len(ratios))
		for i, r := range ratios {
			sq := math.Sqrt(r)
			heights[i] = scales[i] / sq
			widths[i] = scales[i] * sq
		}

		stride := opts.Strides[layer]
		fh := int(math.Ceil(float64(opts.InputHeight) / float64(stride)))
		fw := int(math.Ceil(float64(opts.InputWidth) / float64(stride)))

		for y := 0; y < fh; y++ {
			for x := 0; x < fw; x++ {
				for id := range widths {
					a := Anchor{
						CenterX: (float64(x) + opts.OffsetX) / float64(fw),
						CenterY: (float64(y) + opts.OffsetY) / float64(fh),
						Width:   widths[id],
						Height:  heights[id],
					}
					if opts.FixedAnchorSize {
						a.Width, a.Height = 1.0, 1.0
					}
					anchors = append(anchors, a)
				}
			}
		}

		layer = last
	}

	return anchors, nil
}

func layerScale(minScale, maxScale float64, index, count int) float64 {
	if count == 1 {
		return (minScale + maxScale) * 0.5
	}
	return minScale + (maxScale-minScale)*float64(index)/float64(count-1)
}
