// Package palm decodes the palm detection model output into oriented hand regions.
package palm

import (
	"image"
	"math"

	"github.com/ayusman/pokayoke/internal/nms"
)

// NumKeypoints is the number of palm keypoints regressed per anchor.
const NumKeypoints = 7

// ValuesPerAnchor is the regressor width: box center, box size and keypoints.
const ValuesPerAnchor = 4 + 2*NumKeypoints

// Point is a 2D point, normalized or in pixels depending on context.
type Point struct {
	X, Y float64
}

// Region is a decoded palm detection in normalized coordinates.
type Region struct {
	Score     float64
	Box       nms.Box
	Keypoints [NumKeypoints]Point
}

// NMSBox implements nms.Scored.
func (r Region) NMSBox() nms.Box { return r.Box }

// NMSScore implements nms.Scored.
func (r Region) NMSScore() float64 { return r.Score }

// Center returns the box center.
func (r Region) Center() Point {
	return Point{X: r.Box.X + r.Box.W/2, Y: r.Box.Y + r.Box.H/2}
}

// PixelRect maps the normalized box onto the original frame. Inference runs on
// the frame padded to a square of side max(frameW, frameH), so the padding is
// removed after scaling.
func (r Region) PixelRect(frameW, frameH int) image.Rectangle {
	size := frameW
	if frameH > size {
		size = frameH
	}
	padW := (size - frameW) / 2
	padH := (size - frameH) / 2
	s := float64(size)

	return image.Rect(
		int(r.Box.X*s)-padW,
		int(r.Box.Y*s)-padH,
		int((r.Box.X+r.Box.W)*s)-padW,
		int((r.Box.Y+r.Box.H)*s)-padH,
	)
}

func sigmoid(x float64) float64 {
	if x > 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
