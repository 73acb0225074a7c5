package palm

import (
	"math"

	"github.com/pkg/errors"
)

// ErrDegenerateKeypoints is returned when the wrist and middle-finger keypoints
// coincide and the hand orientation is undefined.
var ErrDegenerateKeypoints = errors.New("palm keypoints 0 and 2 coincide")

// RectConfig describes how a palm box is grown into the hand crop.
type RectConfig struct {
	ScaleX      float64
	ScaleY      float64
	ShiftX      float64
	ShiftY      float64
	TargetAngle float64
}

// DefaultRectConfig returns the settings used to crop hands for landmark inference.
func DefaultRectConfig() RectConfig {
	return RectConfig{
		ScaleX:      2.6,
		ScaleY:      2.6,
		ShiftX:      0,
		ShiftY:      -0.5,
		TargetAngle: math.Pi / 2,
	}
}

// OrientedRegion is a region with its rotated square crop in pixel coordinates.
type OrientedRegion struct {
	Region
	Rotation   float64
	RectCenter Point
	RectWidth  float64
	RectHeight float64
	// RectCorners are ordered so that corners[1:] map to the top-left,
	// top-right and bottom-right of the upright crop.
	RectCorners [4]Point
}

// NormalizeRadians wraps angle into [-pi, pi).
func NormalizeRadians(angle float64) float64 {
	return angle - 2*math.Pi*math.Floor((angle+math.Pi)/(2*math.Pi))
}

// Rotation returns the hand orientation from keypoints 0 and 2.
func Rotation(r Region, targetAngle float64) (float64, error) {
	p0, p2 := r.Keypoints[0], r.Keypoints[2]
	if p0 == p2 {
		return 0, ErrDegenerateKeypoints
	}
	return NormalizeRadians(targetAngle - math.Atan2(-(p2.Y-p0.Y), p2.X-p0.X)), nil
}

// ToRect grows the region into an oriented square crop on a frame of
// frameW x frameH pixels.
func ToRect(r Region, cfg RectConfig, frameW, frameH float64) (OrientedRegion, error) {
	rotation, err := Rotation(r, cfg.TargetAngle)
	if err != nil {
		return OrientedRegion{}, err
	}

	c := r.Center()
	w, h := r.Box.W, r.Box.H

	var cx, cy float64
	if rotation == 0 {
		cx = (c.X + w*cfg.ShiftX) * frameW
		cy = (c.Y + h*cfg.ShiftY) * frameH
	} else {
		sin, cos := math.Sincos(rotation)
		xShift := frameW*w*cfg.ShiftX*cos - frameH*h*cfg.ShiftY*sin
		yShift := frameW*w*cfg.ShiftX*sin + frameH*h*cfg.ShiftY*cos
		cx = c.X*frameW + xShift
		cy = c.Y*frameH + yShift
	}

	long := math.Max(w*frameW, h*frameH)
	o := OrientedRegion{
		Region:     r,
		Rotation:   rotation,
		RectCenter: Point{X: cx, Y: cy},
		RectWidth:  long * cfg.ScaleX,
		RectHeight: long * cfg.ScaleY,
	}
	o.RectCorners = Corners(o.RectCenter, o.RectWidth, o.RectHeight, rotation)
	return o, nil
}

// Corners returns the four corners of a w x h rectangle centered on c and
// rotated by rotation. Opposite corners are symmetric about c.
func Corners(c Point, w, h, rotation float64) [4]Point {
	a := math.Sin(rotation) * 0.5
	b := math.Cos(rotation) * 0.5

	p0 := Point{X: c.X - a*h - b*w, Y: c.Y + b*h - a*w}
	p1 := Point{X: c.X + a*h - b*w, Y: c.Y - b*h - a*w}
	return [4]Point{
		p0,
		p1,
		{X: 2*c.X - p0.X, Y: 2*c.Y - p0.Y},
		{X: 2*c.X - p1.X, Y: 2*c.Y - p1.Y},
	}
}
