// Package depth fuses detection boxes with a depth map aligned to the color
// image and checks them against a zone's spatial envelope.
package depth

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultShrinkPercent is the fraction of the box discarded around the edges
// before averaging depth.
const DefaultShrinkPercent = 0.5

// DefaultCalibrationRadius is the half-size of the window averaged around a
// depth calibration point.
const DefaultCalibrationRadius = 10

// Map is a row-major depth image. NaN samples are invalid.
type Map struct {
	Width  int
	Height int
	Data   []float64
}

// NewMap wraps data as a width x height map.
func NewMap(width, height int, data []float64) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("depth map size must be positive, got %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("depth map %dx%d needs %d samples, got %d", width, height, width*height, len(data))
	}
	return &Map{Width: width, Height: height, Data: data}, nil
}

// Bounds returns the map rectangle.
func (m *Map) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// At returns the sample at (x, y).
func (m *Map) At(x, y int) float64 {
	return m.Data[y*m.Width+x]
}

// Mean averages the valid samples inside r, clipped to the map. It reports
// false when no valid sample remains.
func (m *Map) Mean(r image.Rectangle) (int, bool) {
	r = r.Canon().Intersect(m.Bounds())
	if r.Empty() {
		return 0, false
	}
	samples := make([]float64, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.Data[y*m.Width : (y+1)*m.Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			if v := row[x]; !math.IsNaN(v) {
				samples = append(samples, v)
			}
		}
	}
	if len(samples) == 0 {
		return 0, false
	}
	mean := stat.Mean(samples, nil)
	if math.IsNaN(mean) {
		return 0, false
	}
	return int(mean), true
}

// ShrinkByPercent removes int(size*percent/2) from every side of r.
func ShrinkByPercent(r image.Rectangle, percent float64) image.Rectangle {
	dx := int(float64(r.Dx()) * percent / 2)
	dy := int(float64(r.Dy()) * percent / 2)
	return image.Rect(r.Min.X+dx, r.Min.Y+dy, r.Max.X-dx, r.Max.Y-dy)
}

// Centroid returns the center of r, rounded toward the top-left.
func Centroid(r image.Rectangle) image.Point {
	return image.Pt(r.Dx()/2+r.Min.X, r.Dy()/2+r.Min.Y)
}

// MeanDepth averages the inner part of box left after shrinking it by percent.
func MeanDepth(m *Map, box image.Rectangle, percent float64) (int, bool) {
	return m.Mean(ShrinkByPercent(box, percent))
}

// PointDepth averages a (2*radius) square window centered on p.
func PointDepth(m *Map, p image.Point, radius int) (int, bool) {
	return m.Mean(image.Rect(p.X-radius, p.Y-radius, p.X+radius, p.Y+radius))
}

// InRangeX reports whether box lies strictly inside zone horizontally.
func InRangeX(zone, box image.Rectangle) bool {
	return zone.Min.X < box.Min.X && zone.Max.X > box.Max.X
}

// InRangeY reports whether box lies strictly inside zone vertically.
func InRangeY(zone, box image.Rectangle) bool {
	return zone.Min.Y < box.Min.Y && zone.Max.Y > box.Max.Y
}

// Inside reports whether box lies strictly inside zone on both axes.
func Inside(zone, box image.Rectangle) bool {
	return InRangeX(zone, box) && InRangeY(zone, box)
}

// InRangeZ reports whether depth lies strictly between the calibrated levels.
// The lower level reads larger than the upper one on the sensor, so the test
// is lowerZ > depth > upperZ.
func InRangeZ(depth, lowerZ, upperZ int) bool {
	return lowerZ > depth && upperZ < depth
}
