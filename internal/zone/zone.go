// Package zone models the operator-authored validation zones: a rectangle on
// the color image and two calibration points on the depth image.
package zone

import (
	"errors"
	"image"
)

// MaxZones is the number of zones a station can hold.
const MaxZones = 8

var (
	// ErrMissingTopLeft is returned when a bottom-right corner is set before the top-left one.
	ErrMissingTopLeft = errors.New("rect has no top-left point")
	// ErrMissingLowerLevel is returned when the upper level is set before the lower one.
	ErrMissingLowerLevel = errors.New("depth has no lower level point")
	// ErrMissingName is returned when a zone record has no name.
	ErrMissingName = errors.New("zone has no name")
)

// Point is a pixel position.
type Point struct {
	X int `json:"X"`
	Y int `json:"Y"`
}

// Rect is an axis-aligned area. BottomRight is nil until the second corner is placed.
type Rect struct {
	TopLeft     Point  `json:"TopLeft"`
	BottomRight *Point `json:"BottomRight"`
}

// Complete reports whether both corners are set.
func (r *Rect) Complete() bool {
	return r != nil && r.BottomRight != nil
}

// Rectangle returns the area as an image.Rectangle, canonicalized.
func (r *Rect) Rectangle() (image.Rectangle, bool) {
	if !r.Complete() {
		return image.Rectangle{}, false
	}
	return image.Rect(r.TopLeft.X, r.TopLeft.Y, r.BottomRight.X, r.BottomRight.Y), true
}

// Depth holds the two calibration points whose depth bounds the zone.
type Depth struct {
	LowerLevel Point  `json:"LowerLevel"`
	UpperLevel *Point `json:"UpperLevel"`
}

// Complete reports whether both calibration points are set.
func (d *Depth) Complete() bool {
	return d != nil && d.UpperLevel != nil
}

// Zone is one validation zone. Amount and Image are used by the counting
// station; picking zones leave them empty.
type Zone struct {
	Name   string  `json:"Name"`
	Amount int     `json:"Amount"`
	Image  *string `json:"Image"`
	Rect   *Rect   `json:"Rect"`
	Depth  *Depth  `json:"Depth"`
}

// New returns an empty zone.
func New(name string) *Zone {
	return &Zone{Name: name}
}

// SetRectTopLeft starts a new rectangle, discarding any previous one.
func (z *Zone) SetRectTopLeft(p Point) {
	z.Rect = &Rect{TopLeft: p}
}

// SetRectBottomRight completes the rectangle.
func (z *Zone) SetRectBottomRight(p Point) error {
	if z.Rect == nil {
		return ErrMissingTopLeft
	}
	z.Rect.BottomRight = &p
	return nil
}

// SetDepthLowerLevel starts a new depth calibration, discarding any previous one.
func (z *Zone) SetDepthLowerLevel(p Point) {
	z.Depth = &Depth{LowerLevel: p}
}

// SetDepthUpperLevel completes the depth calibration.
func (z *Zone) SetDepthUpperLevel(p Point) error {
	if z.Depth == nil {
		return ErrMissingLowerLevel
	}
	z.Depth.UpperLevel = &p
	return nil
}

// AddRectPoint places the next rectangle corner the way an operator clicks:
// the first click starts a rectangle, the second closes it, a third starts over.
func (z *Zone) AddRectPoint(p Point) {
	if z.Rect == nil || z.Rect.Complete() {
		z.SetRectTopLeft(p)
		return
	}
	_ = z.SetRectBottomRight(p)
}

// AddDepthPoint places the next depth calibration point, like AddRectPoint.
func (z *Zone) AddDepthPoint(p Point) {
	if z.Depth == nil || z.Depth.Complete() {
		z.SetDepthLowerLevel(p)
		return
	}
	_ = z.SetDepthUpperLevel(p)
}

// Complete reports whether the zone can be used for validation.
func (z *Zone) Complete() bool {
	return z.Rect.Complete() && z.Depth.Complete()
}

// Clone returns a deep copy.
func (z *Zone) Clone() *Zone {
	if z == nil {
		return nil
	}
	c := &Zone{Name: z.Name, Amount: z.Amount}
	if z.Image != nil {
		img := *z.Image
		c.Image = &img
	}
	if z.Rect != nil {
		r := *z.Rect
		if r.BottomRight != nil {
			br := *r.BottomRight
			r.BottomRight = &br
		}
		c.Rect = &r
	}
	if z.Depth != nil {
		d := *z.Depth
		if d.UpperLevel != nil {
			up := *d.UpperLevel
			d.UpperLevel = &up
		}
		c.Depth = &d
	}
	return c
}
