package inference

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Padding is the border added around a frame to make it square.
type Padding struct {
	Top, Left int
	// Size is the side of the padded square.
	Size int
}

// Letterbox pads frame with black borders to a square of side max(w, h).
// The caller owns the returned Mat.
func Letterbox(frame gocv.Mat) (gocv.Mat, Padding) {
	h, w := frame.Rows(), frame.Cols()
	size := w
	if h > size {
		size = h
	}
	pad := Padding{Top: (size - h) / 2, Left: (size - w) / 2, Size: size}

	out := gocv.NewMat()
	gocv.CopyMakeBorder(frame, &out,
		pad.Top, size-h-pad.Top, pad.Left, size-w-pad.Left,
		gocv.BorderConstant, color.RGBA{0, 0, 0, 0})
	return out, pad
}

// Resize scales frame to size x size. The caller owns the returned Mat.
func Resize(frame gocv.Mat, size int) gocv.Mat {
	out := gocv.NewMat()
	gocv.Resize(frame, &out, image.Pt(size, size), 0, 0, gocv.InterpolationArea)
	return out
}
