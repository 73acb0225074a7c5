package depth

import (
	"image"

	"github.com/ayusman/pokayoke/internal/zone"
)

// Envelope is the calibrated volume a tracked box must occupy.
type Envelope struct {
	Rect   image.Rectangle
	LowerZ int
	UpperZ int
}

// Calibrate measures the depth at the zone's two calibration points and
// returns the zone envelope. It reports false when the zone is incomplete or
// a calibration point has no valid depth.
func Calibrate(m *Map, z *zone.Zone, radius int) (Envelope, bool) {
	if z == nil || !z.Complete() {
		return Envelope{}, false
	}
	rect, _ := z.Rect.Rectangle()

	lower := image.Pt(z.Depth.LowerLevel.X, z.Depth.LowerLevel.Y)
	upper := image.Pt(z.Depth.UpperLevel.X, z.Depth.UpperLevel.Y)
	lowerZ, ok := PointDepth(m, lower, radius)
	if !ok {
		return Envelope{}, false
	}
	upperZ, ok := PointDepth(m, upper, radius)
	if !ok {
		return Envelope{}, false
	}
	return Envelope{Rect: rect, LowerZ: lowerZ, UpperZ: upperZ}, true
}

// Result is the fusion of one box with the depth map and an envelope.
type Result struct {
	Box          image.Rectangle `json:"box"`
	MeanDepth    *int            `json:"mean_depth"`
	Centroid     image.Point     `json:"centroid"`
	InRectX      bool            `json:"in_rect_x"`
	InRectY      bool            `json:"in_rect_y"`
	InDepthRange bool            `json:"in_depth_range"`
}

// Passed reports whether the box is inside the envelope on all three axes.
func (r Result) Passed() bool {
	return r.InRectX && r.InRectY && r.InDepthRange
}

// Evaluate fuses box with m and checks it against env. A box without valid
// depth is never in the depth range.
func Evaluate(m *Map, env Envelope, box image.Rectangle, percent float64) Result {
	inner := ShrinkByPercent(box, percent)
	res := Result{
		Box:      box,
		Centroid: Centroid(inner),
		InRectX:  InRangeX(env.Rect, box),
		InRectY:  InRangeY(env.Rect, box),
	}
	if d, ok := m.Mean(inner); ok {
		res.MeanDepth = &d
		res.InDepthRange = InRangeZ(d, env.LowerZ, env.UpperZ)
	}
	return res
}
