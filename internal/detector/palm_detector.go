package detector

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/anchor"
	"github.com/ayusman/pokayoke/internal/inference"
	"github.com/ayusman/pokayoke/internal/logging"
	"github.com/ayusman/pokayoke/internal/nms"
	"github.com/ayusman/pokayoke/internal/palm"
)

// Palm model output layers.
const (
	layerPalmScores = "classificators"
	layerPalmBoxes  = "regressors"
)

// landmarkBoxScale grows the landmark bounding box into the reported hand box.
const landmarkBoxScale = 1.2

// PalmDetector finds hands with the palm detection model and, optionally,
// the hand landmark model.
type PalmDetector struct {
	engine  inference.Engine
	config  Config
	anchors []anchor.Anchor
	logger  *zap.SugaredLogger
}

// NewPalmDetector creates a PalmDetector. The anchors are generated once.
func NewPalmDetector(engine inference.Engine, config Config, logger *zap.SugaredLogger) (*PalmDetector, error) {
	opts := anchor.PalmOptions()
	opts.InputWidth = config.PalmInputSize
	opts.InputHeight = config.PalmInputSize
	anchors, err := anchor.Generate(opts)
	if err != nil {
		return nil, fmt.Errorf("generate palm anchors: %w", err)
	}
	return &PalmDetector{
		engine:  engine,
		config:  config,
		anchors: anchors,
		logger:  logging.OrNop(logger),
	}, nil
}

// Detect runs palm detection on frame and returns one Hand per surviving palm.
func (d *PalmDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Hand, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	square, pad := inference.Letterbox(*frame)
	defer square.Close()
	input := inference.Resize(square, d.config.PalmInputSize)
	defer input.Close()

	out, err := d.engine.Infer(ctx, inference.ModelPalm, input)
	if err != nil {
		return nil, fmt.Errorf("palm inference: %w", err)
	}
	scores, err := out.Get(layerPalmScores, len(d.anchors))
	if err != nil {
		return nil, err
	}
	boxes, err := out.Get(layerPalmBoxes, len(d.anchors)*palm.ValuesPerAnchor)
	if err != nil {
		return nil, err
	}

	regions, err := palm.Decode(palm.DecodeConfig{
		ScoreThreshold: d.config.PalmScoreThreshold,
		InputSize:      float64(d.config.PalmInputSize),
	}, scores, boxes, d.anchors)
	if err != nil {
		return nil, err
	}
	regions = nms.Suppress(regions, d.config.PalmNMSThreshold)

	size := float64(pad.Size)
	hands := make([]Hand, 0, len(regions))
	for _, r := range regions {
		oriented, err := palm.ToRect(r, d.config.Rect, size, size)
		if err != nil {
			d.logger.Debugw("skipping palm", "score", r.Score, "error", err)
			continue
		}
		hand := Hand{
			Region: oriented,
			Box:    r.PixelRect(frame.Cols(), frame.Rows()),
		}
		for i, c := range oriented.RectCorners {
			hand.Corners[i] = image.Pt(int(c.X)-pad.Left, int(c.Y)-pad.Top)
		}
		if d.config.Landmarks {
			lm, err := d.landmarks(ctx, square, oriented)
			if err != nil {
				return nil, err
			}
			if lm != nil {
				lm.Offset(-float64(pad.Left), -float64(pad.Top))
				hand.Landmarks = lm
				hand.Box = lm.BoundingBox(landmarkBoxScale)
			}
		}
		hands = append(hands, hand)
	}
	return hands, nil
}

func (d *PalmDetector) landmarks(ctx context.Context, square gocv.Mat, region palm.OrientedRegion) (*HandLandmarks, error) {
	crop, err := WarpCrop(square, region, d.config.LandmarkInputSize)
	if err != nil {
		return nil, err
	}
	defer crop.Close()

	out, err := d.engine.Infer(ctx, inference.ModelLandmarks, crop)
	if err != nil {
		return nil, fmt.Errorf("landmark inference: %w", err)
	}
	lm, ok, err := DecodeLandmarks(out, region, d.config.LandmarkInputSize, d.config.LandmarkScoreThreshold)
	if err != nil || !ok {
		return nil, err
	}
	return lm, nil
}

// WarpCrop extracts the oriented region as an upright size x size image.
// The caller owns the returned Mat.
func WarpCrop(src gocv.Mat, region palm.OrientedRegion, size int) (gocv.Mat, error) {
	t, err := region.CropTransform(float64(size))
	if err != nil {
		return gocv.NewMat(), err
	}
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for i, v := range t {
		m.SetDoubleAt(i/3, i%3, v)
	}

	out := gocv.NewMat()
	gocv.WarpAffine(src, &out, m, image.Pt(size, size))
	return out, nil
}

// Close releases the inference engine.
func (d *PalmDetector) Close() error {
	return d.engine.Close()
}
