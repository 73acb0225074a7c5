package nms

import (
	"testing"

	"go.viam.com/test"
)

type scoredBox struct {
	id    string
	box   Box
	score float64
}

func (s scoredBox) NMSBox() Box       { return s.box }
func (s scoredBox) NMSScore() float64 { return s.score }

func TestIoU(t *testing.T) {
	a := Box{0, 0, 2, 2}
	test.That(t, IoU(a, a), test.ShouldAlmostEqual, 1.0)
	test.That(t, IoU(a, Box{1, 1, 2, 2}), test.ShouldAlmostEqual, 1.0/7.0)
	test.That(t, IoU(a, Box{5, 5, 1, 1}), test.ShouldEqual, 0.0)
	test.That(t, IoU(a, Box{2, 0, 2, 2}), test.ShouldEqual, 0.0)

	t.Run("zero area boxes", func(t *testing.T) {
		test.That(t, IoU(Box{1, 1, 0, 0}, Box{1, 1, 0, 0}), test.ShouldEqual, 0.0)
	})
	t.Run("symmetric", func(t *testing.T) {
		b := Box{0.5, 0.2, 3, 1}
		test.That(t, IoU(a, b), test.ShouldAlmostEqual, IoU(b, a))
	})
}

func TestSuppressIdenticalBoxes(t *testing.T) {
	items := []scoredBox{
		{"low", Box{0, 0, 1, 1}, 0.7},
		{"high", Box{0, 0, 1, 1}, 0.9},
		{"mid", Box{0, 0, 1, 1}, 0.8},
	}
	kept := Suppress(items, 0.3)
	test.That(t, kept, test.ShouldHaveLength, 1)
	test.That(t, kept[0].id, test.ShouldEqual, "high")
}

func TestSuppressDisjointBoxes(t *testing.T) {
	items := []scoredBox{
		{"a", Box{0, 0, 1, 1}, 0.6},
		{"b", Box{2, 2, 1, 1}, 0.9},
		{"c", Box{4, 4, 1, 1}, 0.7},
	}
	kept := Suppress(items, 0.3)
	test.That(t, kept, test.ShouldHaveLength, 3)
	test.That(t, kept[0].id, test.ShouldEqual, "b")
	test.That(t, kept[1].id, test.ShouldEqual, "c")
	test.That(t, kept[2].id, test.ShouldEqual, "a")
}

func TestSuppressBelowThresholdOverlapKept(t *testing.T) {
	// IoU = 1/7, below 0.3
	items := []scoredBox{
		{"a", Box{0, 0, 2, 2}, 0.9},
		{"b", Box{1, 1, 2, 2}, 0.8},
	}
	test.That(t, Suppress(items, 0.3), test.ShouldHaveLength, 2)
	test.That(t, Suppress(items, 0.1), test.ShouldHaveLength, 1)
}

func TestSuppressTiesKeepInputOrder(t *testing.T) {
	items := []scoredBox{
		{"first", Box{0, 0, 1, 1}, 0.8},
		{"second", Box{0, 0, 1, 1}, 0.8},
	}
	kept := Suppress(items, 0.3)
	test.That(t, kept, test.ShouldHaveLength, 1)
	test.That(t, kept[0].id, test.ShouldEqual, "first")
}

func TestSuppressEmpty(t *testing.T) {
	test.That(t, Suppress([]scoredBox{}, 0.3), test.ShouldBeEmpty)
}

func TestSuppressPerClass(t *testing.T) {
	cfg := PerClassConfig{ScoreThreshold: 0.45, IOUThreshold: 0.45, MaxDetections: 3}

	t.Run("overlapping boxes of the same class", func(t *testing.T) {
		boxes := []Box{{0, 0, 1, 1}, {0.05, 0, 1, 1}}
		probs := [][]float64{{0.9, 0.1}, {0.8, 0.1}}
		sel := SuppressPerClass(boxes, probs, cfg)
		test.That(t, sel, test.ShouldHaveLength, 1)
		test.That(t, sel[0].Index, test.ShouldEqual, 0)
		test.That(t, sel[0].Class, test.ShouldEqual, 0)
		test.That(t, sel[0].Probability, test.ShouldAlmostEqual, 0.9)
	})

	t.Run("overlapping boxes of different classes", func(t *testing.T) {
		boxes := []Box{{0, 0, 1, 1}, {0.05, 0, 1, 1}}
		probs := [][]float64{{0.9, 0.1}, {0.5, 0.7}}
		sel := SuppressPerClass(boxes, probs, cfg)
		test.That(t, sel, test.ShouldHaveLength, 2)
		test.That(t, sel[0].Class, test.ShouldEqual, 0)
		test.That(t, sel[1].Index, test.ShouldEqual, 1)
		test.That(t, sel[1].Class, test.ShouldEqual, 1)
	})

	t.Run("max detections and threshold", func(t *testing.T) {
		boxes := []Box{{0, 0, 1, 1}, {2, 0, 1, 1}, {4, 0, 1, 1}, {6, 0, 1, 1}, {8, 0, 1, 1}}
		probs := [][]float64{{0.5}, {0.95}, {0.6}, {0.46}, {0.2}}
		sel := SuppressPerClass(boxes, probs, cfg)
		test.That(t, sel, test.ShouldHaveLength, 3)
		test.That(t, sel[0].Index, test.ShouldEqual, 1)
		test.That(t, sel[1].Index, test.ShouldEqual, 2)
		test.That(t, sel[2].Index, test.ShouldEqual, 0)
		for _, s := range sel {
			test.That(t, s.Probability, test.ShouldBeGreaterThan, cfg.ScoreThreshold)
		}
	})

	t.Run("nothing above threshold", func(t *testing.T) {
		boxes := []Box{{0, 0, 1, 1}}
		probs := [][]float64{{0.45, 0.3}}
		test.That(t, SuppressPerClass(boxes, probs, cfg), test.ShouldBeEmpty)
	})

	t.Run("input probabilities untouched", func(t *testing.T) {
		boxes := []Box{{0, 0, 1, 1}, {0, 0, 1, 1}}
		probs := [][]float64{{0.9}, {0.8}}
		SuppressPerClass(boxes, probs, cfg)
		test.That(t, probs[0][0], test.ShouldEqual, 0.9)
		test.That(t, probs[1][0], test.ShouldEqual, 0.8)
	})

	t.Run("mismatched input", func(t *testing.T) {
		test.That(t, SuppressPerClass([]Box{{0, 0, 1, 1}}, nil, cfg), test.ShouldBeEmpty)
	})
}
