package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/capture"
	"github.com/ayusman/pokayoke/internal/config"
	"github.com/ayusman/pokayoke/internal/depth"
	"github.com/ayusman/pokayoke/internal/detector"
	"github.com/ayusman/pokayoke/internal/hook"
	"github.com/ayusman/pokayoke/internal/render"
	"github.com/ayusman/pokayoke/internal/store"
	"github.com/ayusman/pokayoke/internal/validation"
)

// ErrEmptyFrame is returned by ProcessFrame for a missing or empty color image.
var ErrEmptyFrame = errors.New("app: empty frame")

// Report is the outcome of one processed frame.
type Report struct {
	Mode      config.Mode        `json:"mode"`
	Timestamp time.Time          `json:"timestamp"`
	ZoneID    string             `json:"zone_id,omitempty"`
	Zone      string             `json:"zone,omitempty"`
	Hands     int                `json:"hands"`
	Results   []depth.Result     `json:"results,omitempty"`
	Parts     int                `json:"parts"`
	Expected  int                `json:"expected,omitempty"`
	Label     string             `json:"label,omitempty"`
	Step      *validation.Status `json:"step,omitempty"`
	Matched   bool               `json:"matched"`
	Count     int                `json:"count"`
	Required  int                `json:"required"`
	Validated bool               `json:"validated"`
	Rejected  bool               `json:"rejected"`
	Done      bool               `json:"done"`
	Status    string             `json:"status"`
}

// ProcessFrame runs the mode's detectors on frame, updates the quality gate
// and records, publishes and dispatches the outcome. The caller keeps
// ownership of frame.
func (a *App) ProcessFrame(ctx context.Context, frame *capture.Frame) (*Report, error) {
	if frame == nil || frame.Color.Empty() {
		return nil, ErrEmptyFrame
	}
	a.procMu.Lock()
	defer a.procMu.Unlock()

	canvas := a.canvas(frame)
	defer canvas.Close()

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	report := &Report{Mode: a.config.Mode, Timestamp: ts, Required: a.config.Required}

	var err error
	switch a.config.Mode {
	case config.ModeCounting:
		err = a.processCounting(ctx, frame, &canvas, report)
	case config.ModeAssembly:
		err = a.processAssembly(ctx, frame, &canvas, report)
	default:
		err = a.processPicking(ctx, frame, &canvas, report)
	}
	if err != nil {
		return nil, err
	}

	render.DrawStatus(&canvas, report.Status, report.Matched || report.Validated)
	jpeg, err := render.EncodeJPEG(canvas)
	if err != nil {
		a.logger.Debugw("failed to encode frame", "error", err)
	}

	a.mu.Lock()
	if jpeg != nil {
		a.latest = jpeg
	}
	a.report = report
	a.mu.Unlock()

	if report.Validated || report.Rejected {
		a.record(report, jpeg)
	}
	if a.config.Hub != nil {
		a.config.Hub.Publish(report)
	}
	return report, nil
}

// canvas returns the frame to draw on: the color image blended with the
// colorized depth map when one is available.
func (a *App) canvas(frame *capture.Frame) gocv.Mat {
	if frame.Depth == nil {
		return frame.Color.Clone()
	}
	colored, err := render.ColorizeDepth(frame.Depth)
	if err != nil {
		a.logger.Debugw("failed to colorize depth", "error", err)
		return frame.Color.Clone()
	}
	defer colored.Close()
	blended, err := render.Blend(frame.Color, colored, a.config.Render)
	if err != nil {
		a.logger.Debugw("failed to blend depth", "error", err)
		return frame.Color.Clone()
	}
	return blended
}

// processPicking checks that a hand reaches into the active zone's volume.
func (a *App) processPicking(ctx context.Context, frame *capture.Frame, canvas *gocv.Mat, report *Report) error {
	if a.config.Hands == nil {
		return fmt.Errorf("app: picking mode needs a hand detector")
	}
	hands, err := a.config.Hands.Detect(ctx, &frame.Color)
	if err != nil {
		return fmt.Errorf("hand detection failed: %w", err)
	}
	report.Hands = len(hands)
	for _, h := range hands {
		render.DrawHand(canvas, h)
	}

	a.mu.RLock()
	active := a.activeZoneLocked()
	a.drawZonesLocked(canvas, active)
	a.mu.RUnlock()

	report.ZoneID, report.Zone = zoneID(active), zoneName(active)
	switch {
	case active == nil:
		report.Status = "No zone configured"
		return nil
	case !active.Zone.Complete():
		report.Status = fmt.Sprintf("%s: zone incomplete", report.Zone)
		return nil
	case frame.Depth == nil:
		report.Status = fmt.Sprintf("%s: no depth", report.Zone)
		return nil
	}

	env, ok := depth.Calibrate(frame.Depth, active.Zone, depth.DefaultCalibrationRadius)
	if !ok {
		report.Status = fmt.Sprintf("%s: calibration points have no depth", report.Zone)
		return nil
	}
	for _, h := range hands {
		res := depth.Evaluate(frame.Depth, env, h.Box, depth.DefaultShrinkPercent)
		render.DrawResult(canvas, res)
		report.Results = append(report.Results, res)
		report.Matched = report.Matched || res.Passed()
	}

	a.observeZone(report)
	return nil
}

// processCounting checks that the active zone holds its amount of parts.
func (a *App) processCounting(ctx context.Context, frame *capture.Frame, canvas *gocv.Mat, report *Report) error {
	if a.config.Parts == nil {
		return fmt.Errorf("app: counting mode needs a part detector")
	}
	parts, err := a.config.Parts.Detect(ctx, &frame.Color)
	if err != nil {
		return fmt.Errorf("part detection failed: %w", err)
	}

	a.mu.RLock()
	active := a.activeZoneLocked()
	a.drawZonesLocked(canvas, active)
	a.mu.RUnlock()

	report.ZoneID, report.Zone = zoneID(active), zoneName(active)
	if active == nil {
		render.DrawParts(canvas, parts)
		report.Parts = len(parts)
		report.Status = "No zone configured"
		return nil
	}

	inside := partsInZone(parts, active)
	render.DrawParts(canvas, inside)
	report.Parts = len(inside)
	report.Expected = active.Zone.Amount
	report.Matched = report.Expected > 0 && report.Parts == report.Expected

	a.observeZone(report)
	return nil
}

// partsInZone keeps the parts centered inside the zone rectangle, or all of
// them when the zone has no rectangle.
func partsInZone(parts []detector.Part, z *store.Zone) []detector.Part {
	rect, ok := z.Zone.Rect.Rectangle()
	if !ok {
		return parts
	}
	var inside []detector.Part
	for _, p := range parts {
		if depth.Centroid(p.Rect).In(rect) {
			inside = append(inside, p)
		}
	}
	return inside
}

// observeZone feeds report.Matched to the zone gate and advances the pick
// list when the zone validates.
func (a *App) observeZone(report *Report) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		report.Status = fmt.Sprintf("%s: validation off", report.Zone)
		return
	}
	report.Validated = a.counter.Observe(report.Matched)
	report.Count = a.counter.Count()
	if !report.Validated {
		report.Status = fmt.Sprintf("%s: %d/%d", report.Zone, report.Count, report.Required)
		return
	}

	report.Status = fmt.Sprintf("%s: OK", report.Zone)
	a.counter.Reset()
	a.cursor++
	if a.cursor >= len(a.zones) {
		a.cursor = 0
		report.Done = true
	}
}

// processAssembly feeds the classifier and part detections to the step sequence.
func (a *App) processAssembly(ctx context.Context, frame *capture.Frame, canvas *gocv.Mat, report *Report) error {
	if a.config.Classifier == nil {
		return fmt.Errorf("app: assembly mode needs a classifier")
	}
	classes, err := a.config.Classifier.Classify(ctx, &frame.Color)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}
	var obs validation.Observation
	if len(classes) > 0 {
		obs.Classification = classes[0].Label
		report.Label = classes[0].Label
	}

	if a.config.Parts != nil {
		parts, err := a.config.Parts.Detect(ctx, &frame.Color)
		if err != nil {
			return fmt.Errorf("part detection failed: %w", err)
		}
		render.DrawParts(canvas, parts)
		report.Parts = len(parts)
		for _, p := range parts {
			obs.Detections = append(obs.Detections, p.Label)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	steps := a.sequence.Steps()
	if !a.enabled {
		st := validation.Status{Step: a.sequence.Current(), Done: a.sequence.Done()}
		if !st.Done {
			st.Label = steps[st.Step].Label
		}
		report.Step = &st
		report.Status = "Validation off"
		return nil
	}

	st := a.sequence.Observe(obs)
	report.Step = &st
	report.Matched = st.Matched
	report.Count = st.Count
	report.Validated = st.Validated
	report.Done = st.Done && st.Validated
	// reject once per KO appearance
	report.Rejected = st.KO && !a.lastKO
	a.lastKO = st.KO

	switch {
	case st.Done && !st.Validated:
		report.Status = "Assembly complete"
	case st.Validated:
		report.Status = fmt.Sprintf("%s: OK", st.Label)
	case st.KO:
		report.Status = fmt.Sprintf("%s: KO", st.Label)
	default:
		report.Status = fmt.Sprintf("Step %d/%d %s: %d/%d", st.Step+1, len(steps), st.Label, st.Count, report.Required)
	}
	return nil
}

// drawZonesLocked outlines every zone, highlighting active.
func (a *App) drawZonesLocked(canvas *gocv.Mat, active *store.Zone) {
	for _, z := range a.zones {
		render.DrawZone(canvas, z.Zone, z == active)
	}
}

// record stores the decision with its evidence and fires the hooks.
func (a *App) record(report *Report, jpeg []byte) {
	step := ""
	if report.Step != nil {
		step = report.Step.Label
	}

	if a.config.Store != nil {
		v := &store.Validation{
			ZoneID: report.ZoneID,
			Mode:   string(report.Mode),
			Step:   step,
			Count:  report.Count,
			Passed: report.Validated,
		}
		if report.Mode == config.ModeCounting {
			v.Count = report.Parts
		}
		if err := a.config.Store.Validations().Create(v); err != nil {
			a.logger.Errorw("failed to record validation", "error", err)
		} else if jpeg != nil {
			if err := a.config.Store.Evidence().Create(&store.Evidence{ValidationID: v.ID, Image: jpeg}); err != nil {
				a.logger.Errorw("failed to store evidence", "validation", v.ID, "error", err)
			}
		}
	}

	event := hook.EventValidated
	if report.Rejected {
		event = hook.EventRejected
	}
	a.logger.Infow("gate decision", "event", event, "mode", report.Mode, "zone", report.Zone, "step", step, "count", report.Count)

	req := &hook.Request{
		Event:     event,
		Mode:      string(report.Mode),
		Zone:      report.Zone,
		Step:      step,
		Count:     report.Count,
		Passed:    report.Validated,
		Timestamp: report.Timestamp,
	}
	if report.Mode == config.ModeCounting {
		req.Count = report.Parts
	}
	a.dispatch(req)

	if report.Done {
		done := *req
		done.Event = hook.EventSequenceDone
		a.dispatch(&done)
	}
}

// rectOf returns the zone rectangle, or the empty rectangle.
func rectOf(z *store.Zone) image.Rectangle {
	if z == nil || z.Zone == nil {
		return image.Rectangle{}
	}
	r, _ := z.Zone.Rect.Rectangle()
	return r
}
