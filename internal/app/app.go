// Package app runs the poka-yoke station: it reads frames, detects hands or
// parts, checks them against the configured zones and steps, and records the
// decisions of the quality gate.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/capture"
	"github.com/ayusman/pokayoke/internal/config"
	"github.com/ayusman/pokayoke/internal/detector"
	"github.com/ayusman/pokayoke/internal/hook"
	"github.com/ayusman/pokayoke/internal/logging"
	"github.com/ayusman/pokayoke/internal/render"
	"github.com/ayusman/pokayoke/internal/store"
	"github.com/ayusman/pokayoke/internal/validation"
	"github.com/ayusman/pokayoke/internal/yolo"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate during active detection.
	ActiveFPS = 15
	// IdleTimeout is how long without motion before switching back to idle mode.
	IdleTimeout = 2 * time.Second
)

// ErrNoCamera is returned by New when the config has no camera.
var ErrNoCamera = errors.New("app: camera is required")

// ErrMissingDetector is returned by New when an assembly step needs a
// detector the config does not provide.
var ErrMissingDetector = errors.New("app: assembly step has no detector")

// PartDetector finds parts in a frame.
type PartDetector interface {
	Detect(ctx context.Context, frame *gocv.Mat) ([]detector.Part, error)
}

// Classifier labels a whole frame.
type Classifier interface {
	Classify(ctx context.Context, frame *gocv.Mat) ([]yolo.Classification, error)
}

// Publisher receives every frame report.
type Publisher interface {
	Publish(v any)
}

// Config holds the station components. Only Camera is required; the mode
// decides which detectors are used.
type Config struct {
	Store      *store.Store
	Camera     capture.Camera
	Hands      detector.HandDetector
	Parts      PartDetector
	Classifier Classifier
	Hooks      *hook.Manager
	Hub        Publisher
	Mode       config.Mode
	// Required is the number of matching frames that validate a zone or step.
	Required int
	// Cumulative counts matches without resetting on a miss.
	Cumulative bool
	// Steps is the assembly sequence; nil uses validation.AssemblySteps.
	Steps  []validation.Step
	Motion capture.MotionConfig
	Render render.Options
	Logger *zap.SugaredLogger
}

// Status is a snapshot of the station state.
type Status struct {
	Mode     config.Mode `json:"mode"`
	Running  bool        `json:"running"`
	Enabled  bool        `json:"enabled"`
	ZoneID   string      `json:"zone_id,omitempty"`
	Zone     string      `json:"zone,omitempty"`
	Zones    int         `json:"zones"`
	Step     int         `json:"step"`
	Steps    int         `json:"steps"`
	Label    string      `json:"label,omitempty"`
	Count    int         `json:"count"`
	Required int         `json:"required"`
}

// Describe returns a one-line summary for the operator.
func (s Status) Describe() string {
	switch s.Mode {
	case config.ModeAssembly:
		if s.Step >= s.Steps {
			return "Assembly complete"
		}
		return fmt.Sprintf("Step %d/%d: %s", s.Step+1, s.Steps, s.Label)
	default:
		if s.Zone == "" {
			return "No zone configured"
		}
		return fmt.Sprintf("Zone %d/%d: %s", s.Step+1, s.Zones, s.Zone)
	}
}

// App is the station that orchestrates detection, validation and recording.
type App struct {
	config   Config
	camera   capture.Camera
	motion   *capture.MotionDetector
	logger   *zap.SugaredLogger
	counter  *validation.Counter
	sequence *validation.Sequence

	mu      sync.RWMutex
	enabled bool
	zones   []*store.Zone
	cursor  int
	lastKO  bool
	latest  []byte
	report  *Report

	procMu sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	hooks  sync.WaitGroup
}

// New creates a station with the given components and loads its zones.
func New(cfg Config) (*App, error) {
	if cfg.Camera == nil {
		return nil, ErrNoCamera
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModePicking
	}
	if cfg.Required <= 0 {
		cfg.Required = validation.DefaultRequired
	}
	if cfg.Steps == nil {
		cfg.Steps = validation.AssemblySteps()
	}
	if cfg.Mode == config.ModeAssembly {
		if err := checkSteps(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Render == (render.Options{}) {
		cfg.Render = render.DefaultOptions()
	}
	if cfg.Motion == (capture.MotionConfig{}) {
		cfg.Motion = capture.DefaultMotionConfig()
	}

	a := &App{
		config:   cfg,
		camera:   cfg.Camera,
		motion:   capture.NewMotionDetector(cfg.Motion),
		logger:   logging.OrNop(cfg.Logger),
		counter:  newCounter(cfg),
		sequence: validation.NewSequence(cfg.Steps, cfg.Required),
		enabled:  true,
	}

	if cfg.Store != nil {
		a.enabled = cfg.Store.Settings().GetBool(store.SettingValidation, true)
		if v, err := cfg.Store.Settings().Get(store.SettingColorWeight); err == nil {
			if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
				a.config.Render = render.Options{ColorWeight: w, DepthWeight: 1 - w}
			}
		}
	}
	if err := a.ReloadZones(); err != nil {
		return nil, err
	}
	return a, nil
}

// checkSteps makes sure every assembly step can be confirmed: counted steps
// need the part detector, the others need the classifier.
func checkSteps(cfg Config) error {
	for i, step := range cfg.Steps {
		if step.Detections > 0 && cfg.Parts == nil {
			return fmt.Errorf("%w: step %d (%s) counts parts", ErrMissingDetector, i+1, step.Label)
		}
		if step.Detections == 0 && cfg.Classifier == nil {
			return fmt.Errorf("%w: step %d (%s) needs the classifier", ErrMissingDetector, i+1, step.Label)
		}
	}
	return nil
}

func newCounter(cfg Config) *validation.Counter {
	c := validation.NewCounter(cfg.Required)
	c.Consecutive = !cfg.Cumulative
	return c
}

// Mode returns the station workflow.
func (a *App) Mode() config.Mode {
	return a.config.Mode
}

// ReloadZones refreshes the zone list from the store. The active zone is
// kept when it still exists.
func (a *App) ReloadZones() error {
	if a.config.Store == nil {
		return nil
	}
	zones, err := a.config.Store.Zones().List()
	if err != nil {
		return fmt.Errorf("failed to load zones: %w", err)
	}
	active, _ := a.config.Store.Settings().GetOr(store.SettingActiveZone, "")

	a.mu.Lock()
	defer a.mu.Unlock()
	a.zones = zones
	a.cursor = 0
	for i, z := range zones {
		if z.ID == active {
			a.cursor = i
		}
	}
	a.counter.Reset()
	a.logger.Infow("zones loaded", "count", len(zones), "active", zoneName(a.activeZoneLocked()))
	return nil
}

// SetEnabled turns the quality gate on or off. Frames are still annotated
// while it is off.
func (a *App) SetEnabled(enabled bool) error {
	a.mu.Lock()
	a.enabled = enabled
	a.counter.Reset()
	a.mu.Unlock()

	if a.config.Store != nil {
		return a.config.Store.Settings().Set(store.SettingValidation, strconv.FormatBool(enabled))
	}
	return nil
}

// IsEnabled reports whether the quality gate is on.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SelectZone makes the zone with id the one being validated.
func (a *App) SelectZone(id string) error {
	a.mu.Lock()
	idx := -1
	for i, z := range a.zones {
		if z.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return store.ErrNotFound
	}
	a.cursor = idx
	a.counter.Reset()
	a.mu.Unlock()
	return a.saveActive(id)
}

// ResetSequence restarts the pick list or the assembly sequence.
func (a *App) ResetSequence() {
	a.mu.Lock()
	a.cursor = 0
	a.lastKO = false
	a.counter.Reset()
	a.sequence.Reset()
	id := zoneID(a.activeZoneLocked())
	a.mu.Unlock()

	if err := a.saveActive(id); err != nil {
		a.logger.Warnw("failed to save active zone", "error", err)
	}
	a.logger.Info("sequence reset")
}

func (a *App) saveActive(id string) error {
	if a.config.Store == nil {
		return nil
	}
	return a.config.Store.Settings().Set(store.SettingActiveZone, id)
}

// ActiveZone returns a copy of the zone being validated, or nil.
func (a *App) ActiveZone() *store.Zone {
	a.mu.RLock()
	defer a.mu.RUnlock()
	z := a.activeZoneLocked()
	if z == nil {
		return nil
	}
	c := *z
	c.Zone = z.Zone.Clone()
	return &c
}

func (a *App) activeZoneLocked() *store.Zone {
	if len(a.zones) == 0 {
		return nil
	}
	return a.zones[a.cursor%len(a.zones)]
}

func zoneID(z *store.Zone) string {
	if z == nil {
		return ""
	}
	return z.ID
}

func zoneName(z *store.Zone) string {
	if z == nil || z.Zone == nil {
		return ""
	}
	return z.Zone.Name
}

// Status returns a snapshot of the station state.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.statusLocked()
}

func (a *App) statusLocked() Status {
	st := Status{
		Mode:     a.config.Mode,
		Running:  a.stopCh != nil,
		Enabled:  a.enabled,
		Zones:    len(a.zones),
		Count:    a.counter.Count(),
		Required: a.config.Required,
	}
	if a.config.Mode == config.ModeAssembly {
		steps := a.sequence.Steps()
		st.Step = a.sequence.Current()
		st.Steps = len(steps)
		if st.Step < len(steps) {
			st.Label = steps[st.Step].Label
		}
		return st
	}
	z := a.activeZoneLocked()
	st.ZoneID = zoneID(z)
	st.Zone = zoneName(z)
	st.Steps = len(a.zones)
	if len(a.zones) > 0 {
		st.Step = a.cursor % len(a.zones)
	}
	return st
}

// Snapshot returns the latest annotated frame as JPEG, or nil.
func (a *App) Snapshot() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// LastReport returns the report of the latest processed frame, or nil.
func (a *App) LastReport() *Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.report
}

// Start opens the camera and begins the frame loop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(IdleFPS)

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	a.logger.Infow("station started", "mode", a.config.Mode)
	return nil
}

// Stop halts the frame loop, waits for running hooks and releases the camera.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}
	a.hooks.Wait()

	if err := a.camera.Close(); err != nil {
		a.logger.Warnw("error closing camera", "error", err)
	}
	a.logger.Info("station stopped")
}

// Close stops the station and releases the detectors.
func (a *App) Close() error {
	a.Stop()
	a.motion.Close()
	if a.config.Hands != nil {
		return a.config.Hands.Close()
	}
	return nil
}

// IsRunning reports whether the frame loop is active.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// MotionDetector returns the motion detector instance.
func (a *App) MotionDetector() *capture.MotionDetector {
	return a.motion
}

// dispatch runs the hooks for req without blocking the frame loop.
func (a *App) dispatch(req *hook.Request) {
	if a.config.Hooks == nil {
		return
	}
	a.hooks.Add(1)
	go func() {
		defer a.hooks.Done()
		if err := a.config.Hooks.Dispatch(context.Background(), req); err != nil {
			a.logger.Warnw("hook dispatch failed", "event", req.Event, "error", err)
		}
	}()
}
