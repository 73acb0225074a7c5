package detector

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"github.com/ayusman/pokayoke/internal/inference"
	"github.com/ayusman/pokayoke/internal/palm"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Landmark model output layers.
const (
	layerLandmarkScore = "Identity_1"
	layerHandedness    = "Identity_2"
	layerLandmarks     = "Squeeze"
)

// Point3D represents a 3D point; X and Y are frame pixels, Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks of one hand.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// DecodeLandmarks reads the landmark model outputs for region. It reports
// false when the hand presence score does not exceed threshold.
func DecodeLandmarks(t inference.Tensors, region palm.OrientedRegion, inputSize int, threshold float64) (*HandLandmarks, bool, error) {
	score, err := t.Get(layerLandmarkScore, 0)
	if err != nil {
		return nil, false, err
	}
	handedness, err := t.Get(layerHandedness, 0)
	if err != nil {
		return nil, false, err
	}
	raw, err := t.Get(layerLandmarks, 3*NumLandmarks)
	if err != nil {
		return nil, false, err
	}
	if len(score) == 0 || len(handedness) == 0 {
		return nil, false, errors.New("empty landmark score outputs")
	}

	h := &HandLandmarks{Score: float64(score[0]), Handedness: "Left"}
	if h.Score <= threshold {
		return nil, false, nil
	}
	if handedness[0] > 0.5 {
		h.Handedness = "Right"
	}

	toFrame, err := region.UnitToFrame()
	if err != nil {
		return nil, false, errors.Wrap(err, "landmark projection")
	}
	size := float64(inputSize)
	for i := 0; i < NumLandmarks; i++ {
		p := toFrame.Apply(palm.Point{X: float64(raw[3*i]) / size, Y: float64(raw[3*i+1]) / size})
		h.Points[i] = Point3D{X: p.X, Y: p.Y, Z: float64(raw[3*i+2]) / size}
	}
	return h, true, nil
}

// Offset shifts every landmark by (dx, dy).
func (h *HandLandmarks) Offset(dx, dy float64) {
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
	}
}

// BoundingBox returns a square around the landmarks, grown by scale.
func (h *HandLandmarks) BoundingBox(scale float64) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range h.Points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	half := math.Max(maxX-minX, maxY-minY) / 2 * scale
	return image.Rect(int(cx-half), int(cy-half), int(cx+half), int(cy+half))
}
