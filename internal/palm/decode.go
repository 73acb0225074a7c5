package palm

import (
	"github.com/pkg/errors"

	"github.com/ayusman/pokayoke/internal/anchor"
	"github.com/ayusman/pokayoke/internal/nms"
)

// DecodeConfig holds the decoder thresholds.
type DecodeConfig struct {
	// ScoreThreshold is compared against the sigmoid of the raw score.
	ScoreThreshold float64
	// InputSize is the model input side in pixels; regressors are expressed in it.
	InputSize float64
}

// DefaultDecodeConfig returns the palm model settings.
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{ScoreThreshold: 0.6, InputSize: 128}
}

// Decode turns raw scores and regressors into regions whose probability
// exceeds the threshold. The result follows anchor order, not score order.
func Decode(cfg DecodeConfig, scores, boxes []float32, anchors []anchor.Anchor) ([]Region, error) {
	if len(scores) != len(anchors) {
		return nil, errors.Errorf("expected %d scores, got %d", len(anchors), len(scores))
	}
	if len(boxes) != len(anchors)*ValuesPerAnchor {
		return nil, errors.Errorf("expected %d regressor values, got %d", len(anchors)*ValuesPerAnchor, len(boxes))
	}
	if cfg.InputSize <= 0 {
		return nil, errors.Errorf("input size must be positive, got %v", cfg.InputSize)
	}

	var regions []Region
	for i, a := range anchors {
		prob := sigmoid(float64(scores[i]))
		if prob <= cfg.ScoreThreshold {
			continue
		}

		raw := boxes[i*ValuesPerAnchor : (i+1)*ValuesPerAnchor]
		sx := a.Width / cfg.InputSize
		sy := a.Height / cfg.InputSize

		cx := float64(raw[0])*sx + a.CenterX
		cy := float64(raw[1])*sy + a.CenterY
		w := float64(raw[2]) * sx
		h := float64(raw[3]) * sy

		r := Region{
			Score: prob,
			Box:   nms.Box{X: cx - w/2, Y: cy - h/2, W: w, H: h},
		}
		for k := 0; k < NumKeypoints; k++ {
			r.Keypoints[k] = Point{
				X: float64(raw[4+2*k])*sx + a.CenterX,
				Y: float64(raw[5+2*k])*sy + a.CenterY,
			}
		}
		regions = append(regions, r)
	}
	return regions, nil
}
