package app

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/capture"
	"github.com/ayusman/pokayoke/internal/config"
	"github.com/ayusman/pokayoke/internal/depth"
	"github.com/ayusman/pokayoke/internal/detector"
	"github.com/ayusman/pokayoke/internal/logging"
	"github.com/ayusman/pokayoke/internal/store"
	"github.com/ayusman/pokayoke/internal/validation"
	"github.com/ayusman/pokayoke/internal/yolo"
	"github.com/ayusman/pokayoke/internal/zone"
)

const (
	frameW = 160
	frameH = 120
)

// handBox lies strictly inside binZone's rectangle.
var handBox = image.Rect(40, 20, 80, 60)

// binZone is a picking zone whose lower level reads 200 and upper level 100
// on the depth maps built by depthMap.
func binZone(name string) *zone.Zone {
	z := zone.New(name)
	z.SetRectTopLeft(zone.Point{X: 30, Y: 10})
	_ = z.SetRectBottomRight(zone.Point{X: 90, Y: 70})
	z.SetDepthLowerLevel(zone.Point{X: 20, Y: 100})
	_ = z.SetDepthUpperLevel(zone.Point{X: 115, Y: 102})
	return z
}

// depthMap returns a bin bottom at 200 with a rim block at 100. With
// reach set, the inner hand area reads 150.
func depthMap(t *testing.T, reach bool) *depth.Map {
	t.Helper()
	data := make([]float64, frameW*frameH)
	inner := depth.ShrinkByPercent(handBox, depth.DefaultShrinkPercent)
	for y := 0; y < frameH; y++ {
		for x := 0; x < frameW; x++ {
			p := image.Pt(x, y)
			switch {
			case p.In(image.Rect(100, 90, 130, 115)):
				data[y*frameW+x] = 100
			case reach && p.In(inner):
				data[y*frameW+x] = 150
			default:
				data[y*frameW+x] = 200
			}
		}
	}
	m, err := depth.NewMap(frameW, frameH, data)
	if err != nil {
		t.Fatalf("failed to create depth map: %v", err)
	}
	return m
}

func newFrame(t *testing.T, m *depth.Map) *capture.Frame {
	t.Helper()
	f := &capture.Frame{Color: gocv.NewMatWithSize(frameH, frameW, gocv.MatTypeCV8UC3), Depth: m}
	t.Cleanup(func() { f.Close() })
	return f
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addZone(t *testing.T, s *store.Store, z *zone.Zone) *store.Zone {
	t.Helper()
	stored := &store.Zone{Zone: z}
	if err := s.Zones().Create(stored); err != nil {
		t.Fatalf("failed to create zone: %v", err)
	}
	return stored
}

type recordingHub struct {
	mu      sync.Mutex
	reports []*Report
}

func (h *recordingHub) Publish(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := v.(*Report); ok {
		h.reports = append(h.reports, r)
	}
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reports)
}

type fakeParts struct {
	parts []detector.Part
	err   error
}

func (f *fakeParts) Detect(ctx context.Context, frame *gocv.Mat) ([]detector.Part, error) {
	return f.parts, f.err
}

func part(label string, r image.Rectangle) detector.Part {
	return detector.Part{Detection: yolo.Detection{Label: label, Probability: 0.9}, Rect: r}
}

// fakeClassifier returns the next queued label on every call.
type fakeClassifier struct {
	labels []string
}

func (f *fakeClassifier) Classify(ctx context.Context, frame *gocv.Mat) ([]yolo.Classification, error) {
	if len(f.labels) == 0 {
		return nil, nil
	}
	l := f.labels[0]
	f.labels = f.labels[1:]
	return []yolo.Classification{{Label: l, Score: 0.9}}, nil
}

func TestNew(t *testing.T) {
	t.Run("camera required", func(t *testing.T) {
		if _, err := New(Config{}); !errors.Is(err, ErrNoCamera) {
			t.Errorf("expected ErrNoCamera, got %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		a, err := New(Config{Camera: capture.NewMockCamera(nil, false)})
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		if a.Mode() != config.ModePicking {
			t.Errorf("expected picking mode, got %s", a.Mode())
		}
		st := a.Status()
		if st.Required != validation.DefaultRequired {
			t.Errorf("expected required %d, got %d", validation.DefaultRequired, st.Required)
		}
		if !st.Enabled {
			t.Error("expected validation to be enabled by default")
		}
		if st.Describe() != "No zone configured" {
			t.Errorf("unexpected description %q", st.Describe())
		}
	})

	t.Run("restores settings", func(t *testing.T) {
		s := newTestStore(t)
		s.Settings().Set(store.SettingValidation, "false")
		s.Settings().Set(store.SettingColorWeight, "0.8")
		a, err := New(Config{Store: s, Camera: capture.NewMockCamera(nil, false)})
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		if a.IsEnabled() {
			t.Error("expected validation to be disabled")
		}
		if a.config.Render.ColorWeight != 0.8 {
			t.Errorf("expected color weight 0.8, got %v", a.config.Render.ColorWeight)
		}
	})
}

func TestProcessFrame_Picking(t *testing.T) {
	s := newTestStore(t)
	first := addZone(t, s, binZone("bin-1"))
	second := addZone(t, s, binZone("bin-2"))

	hands := detector.NewMockDetector()
	hands.SetHands([]detector.Hand{detector.HandAt(handBox)})
	hub := &recordingHub{}

	a, err := New(Config{
		Store:    s,
		Camera:   capture.NewMockCamera(nil, false),
		Hands:    hands,
		Hub:      hub,
		Mode:     config.ModePicking,
		Required: 3,
		Logger:   logging.NewTestLogger(t),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var report *Report
	for i := 0; i < 3; i++ {
		report, err = a.ProcessFrame(context.Background(), newFrame(t, depthMap(t, true)))
		if err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
		if !report.Matched {
			t.Fatalf("frame %d: expected the hand to match, got %+v", i, report.Results)
		}
	}

	if !report.Validated {
		t.Errorf("expected the third frame to validate, got count %d", report.Count)
	}
	if report.Zone != "bin-1" || report.ZoneID != first.ID {
		t.Errorf("expected zone bin-1, got %s", report.Zone)
	}
	if report.Hands != 1 || len(report.Results) != 1 {
		t.Fatalf("expected 1 hand result, got %d", len(report.Results))
	}
	if d := report.Results[0].MeanDepth; d == nil || *d != 150 {
		t.Errorf("expected mean depth 150, got %v", d)
	}
	if report.Done {
		t.Error("expected the pick list to continue")
	}
	if hub.count() != 3 {
		t.Errorf("expected 3 published reports, got %d", hub.count())
	}
	if a.Snapshot() == nil {
		t.Error("expected an annotated snapshot")
	}

	if z := a.ActiveZone(); z == nil || z.ID != second.ID {
		t.Errorf("expected bin-2 to be active next")
	}

	history, err := s.Validations().ListByZone(first.ID, 10)
	if err != nil {
		t.Fatalf("ListByZone() failed: %v", err)
	}
	if len(history) != 1 || !history[0].Passed || history[0].Count != 3 {
		t.Fatalf("expected one passed validation with count 3, got %+v", history)
	}
	ev, err := s.Evidence().GetByValidation(history[0].ID)
	if err != nil {
		t.Fatalf("expected evidence: %v", err)
	}
	if len(ev.Image) == 0 {
		t.Error("expected a JPEG evidence image")
	}
}

func TestProcessFrame_PickingMiss(t *testing.T) {
	s := newTestStore(t)
	addZone(t, s, binZone("bin-1"))

	hands := detector.NewMockDetector()
	hands.SetHands([]detector.Hand{detector.HandAt(handBox)})
	a, err := New(Config{Store: s, Camera: capture.NewMockCamera(nil, false), Hands: hands, Required: 2})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	frames := []bool{true, false, true}
	for i, reach := range frames {
		report, err := a.ProcessFrame(context.Background(), newFrame(t, depthMap(t, reach)))
		if err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
		if report.Matched != reach {
			t.Errorf("frame %d: expected matched=%v", i, reach)
		}
		if report.Validated {
			t.Errorf("frame %d: a miss should reset the consecutive count", i)
		}
	}

	t.Run("hand outside the zone", func(t *testing.T) {
		hands.SetHands([]detector.Hand{detector.HandAt(image.Rect(95, 20, 140, 60))})
		report, err := a.ProcessFrame(context.Background(), newFrame(t, depthMap(t, true)))
		if err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
		if report.Matched || report.Results[0].InRectX {
			t.Error("expected the hand to be outside the zone")
		}
	})

	t.Run("no depth", func(t *testing.T) {
		report, err := a.ProcessFrame(context.Background(), newFrame(t, nil))
		if err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
		if report.Matched || report.Status != "bin-1: no depth" {
			t.Errorf("unexpected report %+v", report)
		}
	})

	t.Run("detector error", func(t *testing.T) {
		hands.SetError(errors.New("engine down"))
		if _, err := a.ProcessFrame(context.Background(), newFrame(t, nil)); err == nil {
			t.Error("expected detector error")
		}
	})
}

func TestProcessFrame_ValidationOff(t *testing.T) {
	s := newTestStore(t)
	addZone(t, s, binZone("bin-1"))
	hands := detector.NewMockDetector()
	hands.SetHands([]detector.Hand{detector.HandAt(handBox)})

	a, err := New(Config{Store: s, Camera: capture.NewMockCamera(nil, false), Hands: hands, Required: 1})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := a.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}
	if s.Settings().GetBool(store.SettingValidation, true) {
		t.Error("expected the setting to be saved")
	}

	report, err := a.ProcessFrame(context.Background(), newFrame(t, depthMap(t, true)))
	if err != nil {
		t.Fatalf("ProcessFrame() failed: %v", err)
	}
	if !report.Matched || report.Validated {
		t.Errorf("expected a match without validation, got %+v", report)
	}
	if recent, _ := s.Validations().Recent(10); len(recent) != 0 {
		t.Errorf("expected no recorded validations, got %d", len(recent))
	}
}

func TestProcessFrame_Counting(t *testing.T) {
	s := newTestStore(t)
	z := binZone("screws")
	z.Amount = 2
	stored := addZone(t, s, z)

	parts := &fakeParts{parts: []detector.Part{
		part("screw", image.Rect(35, 15, 45, 25)),
		part("screw", image.Rect(60, 40, 70, 50)),
		part("screw", image.Rect(120, 100, 130, 110)),
	}}
	a, err := New(Config{Store: s, Camera: capture.NewMockCamera(nil, false), Parts: parts, Mode: config.ModeCounting, Required: 2})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var report *Report
	for i := 0; i < 2; i++ {
		report, err = a.ProcessFrame(context.Background(), newFrame(t, nil))
		if err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
	}
	if report.Parts != 2 || report.Expected != 2 {
		t.Errorf("expected 2 of 2 parts in the zone, got %d of %d", report.Parts, report.Expected)
	}
	if !report.Validated || !report.Done {
		t.Errorf("expected the single zone to validate and finish the list, got %+v", report)
	}

	history, _ := s.Validations().ListByZone(stored.ID, 10)
	if len(history) != 1 || history[0].Count != 2 || history[0].Mode != "counting" {
		t.Errorf("unexpected history %+v", history)
	}

	t.Run("wrong amount", func(t *testing.T) {
		parts.parts = parts.parts[:1]
		report, err := a.ProcessFrame(context.Background(), newFrame(t, nil))
		if err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
		if report.Matched {
			t.Error("expected 1 of 2 parts not to match")
		}
	})
}

func TestProcessFrame_Assembly(t *testing.T) {
	s := newTestStore(t)
	classifier := &fakeClassifier{labels: []string{
		"1_base", "1_base",
		"2_top_ko", "2_top_ko",
		"2_top_ok", "2_top_ok",
		"2_top_ok",
	}}
	steps := []validation.Step{
		{Label: "1_base"},
		{Label: "2_top_ok", KO: "ko_top"},
	}
	a, err := New(Config{Store: s, Camera: capture.NewMockCamera(nil, false), Classifier: classifier, Mode: config.ModeAssembly, Steps: steps, Required: 2})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var reports []*Report
	for range 7 {
		r, err := a.ProcessFrame(context.Background(), newFrame(t, nil))
		if err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
		reports = append(reports, r)
	}

	if !reports[1].Validated || reports[1].Step.Label != "1_base" {
		t.Errorf("expected step 1 to validate on frame 2, got %+v", reports[1].Step)
	}
	if !reports[2].Rejected || reports[3].Rejected {
		t.Error("expected a single rejection for consecutive KO frames")
	}
	if !reports[5].Validated || !reports[5].Done {
		t.Errorf("expected the last step to finish the sequence, got %+v", reports[5].Step)
	}
	if reports[6].Validated || reports[6].Status != "Assembly complete" {
		t.Errorf("expected a finished sequence to stay complete, got %+v", reports[6])
	}
	if got := a.Status().Describe(); got != "Assembly complete" {
		t.Errorf("unexpected description %q", got)
	}

	recent, _ := s.Validations().Recent(10)
	if len(recent) != 3 {
		t.Fatalf("expected 3 recorded decisions, got %d", len(recent))
	}
	if recent[1].Passed || recent[1].Step != "2_top_ok" {
		t.Errorf("expected the rejection to be recorded, got %+v", recent[1])
	}

	a.ResetSequence()
	if st := a.Status(); st.Step != 0 || st.Label != "1_base" {
		t.Errorf("expected reset to the first step, got %+v", st)
	}
}

func TestNew_AssemblyDetectors(t *testing.T) {
	classifier := &fakeClassifier{}
	parts := &fakeParts{}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default steps without part detector", Config{Classifier: classifier}, true},
		{"default steps with both detectors", Config{Classifier: classifier, Parts: parts}, false},
		{"classified steps without classifier", Config{Parts: parts, Steps: []validation.Step{{Label: "1_base"}}}, true},
		{"counted steps only", Config{Parts: parts, Steps: []validation.Step{{Label: "gear", Detections: 3}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Camera = capture.NewMockCamera(nil, false)
			tt.cfg.Mode = config.ModeAssembly
			_, err := New(tt.cfg)
			if tt.wantErr && !errors.Is(err, ErrMissingDetector) {
				t.Errorf("expected ErrMissingDetector, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}

	// picking ignores the assembly steps
	if _, err := New(Config{Camera: capture.NewMockCamera(nil, false), Mode: config.ModePicking}); err != nil {
		t.Errorf("expected picking station without part detector, got %v", err)
	}
}

func TestProcessFrame_EmptyFrame(t *testing.T) {
	a, err := New(Config{Camera: capture.NewMockCamera(nil, false)})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := a.ProcessFrame(context.Background(), nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	empty := &capture.Frame{Color: gocv.NewMat()}
	defer empty.Close()
	if _, err := a.ProcessFrame(context.Background(), empty); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestSelectZone(t *testing.T) {
	s := newTestStore(t)
	addZone(t, s, binZone("bin-1"))
	second := addZone(t, s, binZone("bin-2"))

	a, err := New(Config{Store: s, Camera: capture.NewMockCamera(nil, false)})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := a.SelectZone("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := a.SelectZone(second.ID); err != nil {
		t.Fatalf("SelectZone() failed: %v", err)
	}

	// the active zone survives a reload
	addZone(t, s, binZone("bin-3"))
	if err := a.ReloadZones(); err != nil {
		t.Fatalf("ReloadZones() failed: %v", err)
	}
	st := a.Status()
	if st.ZoneID != second.ID || st.Zones != 3 {
		t.Errorf("expected bin-2 of 3 zones, got %+v", st)
	}
	if st.Describe() != "Zone 2/3: bin-2" {
		t.Errorf("unexpected description %q", st.Describe())
	}

	a.ResetSequence()
	if a.Status().Zone != "bin-1" {
		t.Errorf("expected reset to the first zone, got %s", a.Status().Zone)
	}
}
