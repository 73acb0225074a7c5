// Package render draws zones, detections and validation results on frames and
// encodes them for streaming.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/depth"
	"github.com/ayusman/pokayoke/internal/detector"
	"github.com/ayusman/pokayoke/internal/zone"
)

var (
	white  = color.RGBA{255, 255, 255, 0}
	green  = color.RGBA{0, 255, 0, 0}
	red    = color.RGBA{0, 0, 255, 0}
	yellow = color.RGBA{0, 255, 255, 0}
	gray   = color.RGBA{128, 128, 128, 0}
)

// Options controls how the color and depth images are combined.
type Options struct {
	ColorWeight float64
	DepthWeight float64
}

// DefaultOptions returns an even blend.
func DefaultOptions() Options {
	return Options{ColorWeight: 0.5, DepthWeight: 0.5}
}

// ColorizeDepth renders a depth map with the JET color map. Invalid samples
// are drawn as zero. The caller owns the returned Mat.
func ColorizeDepth(m *depth.Map) (gocv.Mat, error) {
	data := make([]byte, len(m.Data))
	for i, v := range m.Data {
		if math.IsNaN(v) || v < 0 {
			continue
		}
		data[i] = byte(math.Min(v, 255))
	}
	gray, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("depth image: %w", err)
	}
	defer gray.Close()

	out := gocv.NewMat()
	gocv.ApplyColorMap(gray, &out, gocv.ColormapJet)
	return out, nil
}

// Blend mixes the color frame with the colorized depth. The caller owns the
// returned Mat.
func Blend(colorImg, depthImg gocv.Mat, opts Options) (gocv.Mat, error) {
	if colorImg.Cols() != depthImg.Cols() || colorImg.Rows() != depthImg.Rows() {
		return gocv.NewMat(), fmt.Errorf("cannot blend %dx%d with %dx%d",
			colorImg.Cols(), colorImg.Rows(), depthImg.Cols(), depthImg.Rows())
	}
	out := gocv.NewMat()
	gocv.AddWeighted(colorImg, opts.ColorWeight, depthImg, opts.DepthWeight, 0, &out)
	return out, nil
}

// DrawZone outlines the zone rectangle and marks its calibration points.
// The active zone is drawn in yellow.
func DrawZone(img *gocv.Mat, z *zone.Zone, active bool) {
	c := gray
	if active {
		c = yellow
	}
	if z.Rect != nil {
		if r, ok := z.Rect.Rectangle(); ok {
			gocv.Rectangle(img, r, c, 2)
			gocv.PutText(img, z.Name, image.Pt(r.Min.X, r.Min.Y-6), gocv.FontHersheyDuplex, 0.5, c, 1)
		} else {
			gocv.Circle(img, image.Pt(z.Rect.TopLeft.X, z.Rect.TopLeft.Y), 3, c, -1)
		}
	}
	if z.Depth != nil {
		gocv.Circle(img, image.Pt(z.Depth.LowerLevel.X, z.Depth.LowerLevel.Y), 4, c, 1)
		if z.Depth.UpperLevel != nil {
			gocv.Circle(img, image.Pt(z.Depth.UpperLevel.X, z.Depth.UpperLevel.Y), 4, c, -1)
		}
	}
}

// DrawResult draws the fused box, its mean depth and one X/Y/Z indicator per
// axis, green when inside the envelope.
func DrawResult(img *gocv.Mat, r depth.Result) {
	c := red
	if r.Passed() {
		c = green
	}
	gocv.Rectangle(img, r.Box, c, 2)
	inner := depth.ShrinkByPercent(r.Box, depth.DefaultShrinkPercent)
	gocv.Rectangle(img, inner, white, 1)

	label := "-"
	if r.MeanDepth != nil {
		label = fmt.Sprintf("%d", *r.MeanDepth)
	}
	gocv.PutText(img, label, image.Pt(r.Centroid.X-10, r.Centroid.Y), gocv.FontHersheyDuplex, 0.4, white, 1)

	for i, axis := range []struct {
		name string
		ok   bool
	}{{"X", r.InRectX}, {"Y", r.InRectY}, {"Z", r.InDepthRange}} {
		ac := red
		if axis.ok {
			ac = green
		}
		gocv.PutText(img, axis.name, image.Pt(r.Box.Min.X+i*16, r.Box.Max.Y+16), gocv.FontHersheyDuplex, 0.5, ac, 1)
	}
}

// DrawHand draws the oriented hand crop and any landmarks.
func DrawHand(img *gocv.Mat, h detector.Hand) {
	for i := range h.Corners {
		gocv.Line(img, h.Corners[i], h.Corners[(i+1)%len(h.Corners)], white, 1)
	}
	if h.Landmarks == nil {
		return
	}
	for _, p := range h.Landmarks.Points {
		gocv.Circle(img, image.Pt(int(p.X), int(p.Y)), 2, yellow, -1)
	}
}

// DrawParts draws labeled part boxes.
func DrawParts(img *gocv.Mat, parts []detector.Part) {
	for _, p := range parts {
		gocv.Rectangle(img, p.Rect, green, 2)
		label := fmt.Sprintf("%s (%.2f)", p.Label, p.Probability)
		gocv.PutText(img, label, image.Pt(p.Rect.Min.X, p.Rect.Min.Y-5), gocv.FontHersheySimplex, 0.5, green, 1)
	}
}

// DrawStatus writes a status line at the top-left corner.
func DrawStatus(img *gocv.Mat, text string, ok bool) {
	c := red
	if ok {
		c = green
	}
	gocv.PutText(img, text, image.Pt(10, 24), gocv.FontHersheyDuplex, 0.7, c, 2)
}

// EncodeJPEG encodes img as JPEG and returns a copy of the bytes.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}
