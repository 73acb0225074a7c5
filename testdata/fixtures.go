// Package testdata builds synthetic model outputs, depth planes and label
// tables for tests. It has no OpenCV dependency; frames live in
// testdata/frames.
package testdata

import (
	"embed"
	"fmt"
	"image"
)

//go:embed labels/*
var labelsFS embed.FS

// LabelFile returns the contents of an embedded label file.
func LabelFile(name string) ([]byte, error) {
	data, err := labelsFS.ReadFile("labels/" + name)
	if err != nil {
		return nil, fmt.Errorf("load labels %s: %w", name, err)
	}
	return data, nil
}

// GridObject places one confident object in a grid detector output.
type GridObject struct {
	Row, Col, Anchor int
	Class            int
	// Logit is the objectness and class logit; 10 gives a probability near 1.
	Logit float32
}

// GridOutput returns a [1, anchors*(5+classes), h, w] tensor, flattened,
// with all zeros except the given objects.
func GridOutput(anchors, classes, h, w int, objects ...GridObject) []float32 {
	stride := 5 + classes
	out := make([]float32, anchors*stride*h*w)
	at := func(a, f, y, x int) int {
		return ((a*stride+f)*h+y)*w + x
	}
	for _, o := range objects {
		logit := o.Logit
		if logit == 0 {
			logit = 10
		}
		out[at(o.Anchor, 4, o.Row, o.Col)] = logit
		out[at(o.Anchor, 5+o.Class, o.Row, o.Col)] = logit
	}
	return out
}

// PalmOutput returns palm detector scores and regressors for n anchors with
// every score strongly negative except the listed hits.
func PalmOutput(n int, hits map[int]float32) (scores, regressors []float32) {
	scores = make([]float32, n)
	for i := range scores {
		scores[i] = -10
	}
	for i, s := range hits {
		scores[i] = s
	}
	return scores, make([]float32, n*18)
}

// DepthPlane returns a w x h depth map filled with value, with the rectangle
// set to inner.
func DepthPlane(w, h int, value float64, rect image.Rectangle, inner float64) []float64 {
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := value
			if (image.Point{X: x, Y: y}).In(rect) {
				v = inner
			}
			data[y*w+x] = v
		}
	}
	return data
}
