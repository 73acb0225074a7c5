// Package nms implements non-maximum suppression over axis-aligned boxes.
package nms

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Box is an axis-aligned rectangle given by its origin and size.
type Box struct {
	X, Y, W, H float64
}

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IoU returns the intersection over union of a and b. A zero union yields 0.
func IoU(a, b Box) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.W, b.X+b.W)
	y2 := math.Min(a.Y+a.H, b.Y+b.H)

	inter := math.Max(0, x2-x1) * math.Max(0, y2-y1)
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Scored is anything with a box and a ranking score.
type Scored interface {
	NMSBox() Box
	NMSScore() float64
}

// Suppress keeps the highest scoring items and drops every item that overlaps
// an already kept one by more than threshold. Equal scores keep input order.
func Suppress[T Scored](items []T, threshold float64) []T {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return items[order[i]].NMSScore() > items[order[j]].NMSScore()
	})

	suppressed := make([]bool, len(items))
	var kept []T
	for oi, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, items[i])
		bi := items[i].NMSBox()
		for _, j := range order[oi+1:] {
			if !suppressed[j] && IoU(bi, items[j].NMSBox()) > threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// PerClassConfig bounds the per-class suppression.
type PerClassConfig struct {
	ScoreThreshold float64
	IOUThreshold   float64
	MaxDetections  int
}

// Selection is one emitted (box, class) pair.
type Selection struct {
	Index       int
	Class       int
	Probability float64
}

// SuppressPerClass repeatedly emits the best remaining (box, class) pair and
// clears that class on every box overlapping the winner. probs[i] holds the
// class probabilities of boxes[i]; it is not modified.
func SuppressPerClass(boxes []Box, probs [][]float64, cfg PerClassConfig) []Selection {
	n := len(boxes)
	if n == 0 || len(probs) != n {
		return nil
	}

	work := make([][]float64, n)
	maxProbs := make([]float64, n)
	maxClasses := make([]int, n)
	for i, p := range probs {
		work[i] = append([]float64(nil), p...)
		maxClasses[i], maxProbs[i] = best(work[i])
	}

	limit := cfg.MaxDetections
	if limit <= 0 || limit > n {
		limit = n
	}

	var out []Selection
	for len(out) < limit {
		i := floats.MaxIdx(maxProbs)
		if maxProbs[i] <= cfg.ScoreThreshold {
			break
		}
		class := maxClasses[i]
		out = append(out, Selection{Index: i, Class: class, Probability: maxProbs[i]})

		for j := range boxes {
			if j != i && IoU(boxes[i], boxes[j]) <= cfg.IOUThreshold {
				continue
			}
			work[j][class] = 0
			maxClasses[j], maxProbs[j] = best(work[j])
		}
	}
	return out
}

func best(p []float64) (int, float64) {
	if len(p) == 0 {
		return 0, 0
	}
	i := floats.MaxIdx(p)
	return i, p[i]
}
