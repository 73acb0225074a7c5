// Package frames builds synthetic camera frames for tests.
package frames

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame returns a black BGR frame with a white filled rectangle.
func Frame(w, h int, rect image.Rectangle) gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
	if !rect.Empty() {
		gocv.Rectangle(&mat, rect, color.RGBA{255, 255, 255, 0}, -1)
	}
	return mat
}
