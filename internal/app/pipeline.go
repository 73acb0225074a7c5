package app

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/ayusman/pokayoke/internal/capture"
	"github.com/ayusman/pokayoke/internal/render"
)

// runPipeline is the frame loop. It manages the idle and active modes based
// on motion detection.
//
// Pipeline logic:
// 1. Start in idle mode (IdleFPS=5)
// 2. On motion inside the active zone, switch to active mode (ActiveFPS=15)
// 3. Run the mode's detectors and the quality gate on every active frame
// 4. After IdleTimeout without motion, switch back to idle mode
//
// Idle frames are still encoded so the live stream keeps moving.
func (a *App) runPipeline(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	activeMode := false
	var roi image.Rectangle
	lastMotionTime := time.Now()

	ticker := time.NewTicker(time.Second / time.Duration(IdleFPS))
	defer ticker.Stop()

	setFPS := func(fps int) {
		a.camera.SetFPS(fps)
		ticker.Reset(time.Second / time.Duration(fps))
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				if !errors.Is(err, capture.ErrCameraNotOpen) {
					a.logger.Warnw("error reading frame", "error", err)
				}
				continue
			}

			if r := rectOf(a.ActiveZone()); r != roi {
				roi = r
				a.motion.SetROI(roi)
			}
			motionDetected, ratio := a.motion.Detect(&frame.Color)

			if motionDetected {
				lastMotionTime = time.Now()
				if !activeMode {
					activeMode = true
					setFPS(ActiveFPS)
					a.logger.Debugw("switched to active mode", "motion", ratio)
				}
			} else if activeMode && time.Since(lastMotionTime) > IdleTimeout {
				activeMode = false
				setFPS(IdleFPS)
				a.logger.Debug("switched to idle mode")
			}

			if !activeMode {
				a.preview(frame)
				frame.Close()
				continue
			}

			if _, err := a.ProcessFrame(ctx, frame); err != nil && ctx.Err() == nil {
				a.logger.Warnw("error processing frame", "error", err)
			}
			frame.Close()
		}
	}
}

// preview stores the unprocessed frame with the zones drawn on it.
func (a *App) preview(frame *capture.Frame) {
	canvas := a.canvas(frame)
	defer canvas.Close()

	a.mu.RLock()
	a.drawZonesLocked(&canvas, a.activeZoneLocked())
	text := a.statusLocked().Describe()
	a.mu.RUnlock()

	render.DrawStatus(&canvas, text, true)
	jpeg, err := render.EncodeJPEG(canvas)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.latest = jpeg
	a.mu.Unlock()
}
