package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/pokayoke/internal/app"
	"github.com/ayusman/pokayoke/internal/capture"
	"github.com/ayusman/pokayoke/internal/config"
	"github.com/ayusman/pokayoke/internal/detector"
	"github.com/ayusman/pokayoke/internal/hook"
	"github.com/ayusman/pokayoke/internal/inference"
	"github.com/ayusman/pokayoke/internal/logging"
	"github.com/ayusman/pokayoke/internal/server"
	"github.com/ayusman/pokayoke/internal/store"
	"github.com/ayusman/pokayoke/internal/tray"
	"github.com/ayusman/pokayoke/internal/yolo"
)

// evidenceRetention is how long validation snapshots are kept.
const evidenceRetention = 30 * 24 * time.Hour

// Label files inside the labels directory. Classifier and part labels are
// written as "0_name".
const (
	partLabels     = "part-labels.txt"
	classifyLabels = "classify-labels.txt"
	detectLabels   = "detect-labels.txt"
	labelPrefix    = 2
)

func main() {
	fmt.Println("Poka-yoke - Vision Quality Station")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("pokayoke", cfg.LogLevel)
	defer logger.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatalw("failed to create data directory", "dir", cfg.DataDir, "error", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		logger.Fatalw("failed to initialize store", "path", cfg.DBPath(), "error", err)
	}
	defer st.Close()

	if n, err := st.Evidence().Prune(time.Now().Add(-evidenceRetention)); err != nil {
		logger.Warnw("failed to prune evidence", "error", err)
	} else if n > 0 {
		logger.Infow("pruned old evidence", "snapshots", n)
	}

	engine, err := inference.NewSubprocessEngine(inference.SubprocessConfig{
		Script: cfg.InferenceScript,
		Logger: logger.Named("inference"),
	})
	if err != nil {
		logger.Fatalw("failed to locate inference service", "error", err)
	}
	defer engine.Close()

	stationCfg, err := detectors(cfg, engine, logger)
	if err != nil {
		logger.Fatalw("failed to create detectors", "mode", cfg.Mode, "error", err)
	}

	hooks := hook.NewManager(cfg.HookDir, hook.NewExecutor(hook.DefaultTimeout), logger.Named("hooks"))
	if err := hooks.Discover(); err != nil {
		logger.Warnw("failed to discover hooks", "dir", cfg.HookDir, "error", err)
	}
	logger.Infow("hooks loaded", "count", len(hooks.List()))

	hub := server.NewResultsHub(logger.Named("results"))

	camCfg := capture.DefaultConfig()
	camCfg.ColorDevice = cfg.CameraID
	camCfg.DepthDevice = cfg.DepthID

	motion := capture.DefaultMotionConfig()
	motion.Threshold = cfg.MotionThreshold

	stationCfg.Store = st
	stationCfg.Camera = capture.NewCamera(camCfg)
	stationCfg.Hooks = hooks
	stationCfg.Hub = hub
	stationCfg.Mode = cfg.Mode
	stationCfg.Required = cfg.ValidationCount
	stationCfg.Cumulative = cfg.Cumulative
	stationCfg.Motion = motion
	stationCfg.Logger = logger.Named("station")

	station, err := app.New(stationCfg)
	if err != nil {
		logger.Fatalw("failed to create station", "error", err)
	}
	defer station.Close()

	if err := station.Start(); err != nil {
		logger.Fatalw("failed to start station", "error", err)
	}

	// Find web directory
	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		logger.Infow("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Station:   station,
		Hooks:     hooks,
		Hub:       hub,
		Logger:    logger.Named("http"),
	})
	go func() {
		if err := srv.ListenAndServe(cfg.Addr); err != nil {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	runTray(cfg, station, logger)
	logger.Info("shutting down")
}

// detectors builds the models the configured mode needs.
func detectors(cfg *config.Config, engine inference.Engine, logger *zap.SugaredLogger) (app.Config, error) {
	var sc app.Config
	switch cfg.Mode {
	case config.ModePicking:
		dc := detector.DefaultConfig()
		dc.PalmScoreThreshold = cfg.PalmScore
		dc.PalmNMSThreshold = cfg.PalmNMS
		hands, err := detector.NewPalmDetector(engine, dc, logger.Named("palm"))
		if err != nil {
			return sc, err
		}
		sc.Hands = hands

	case config.ModeCounting:
		labels, err := yolo.LoadLabelsFile(cfg.LabelsPath(partLabels), labelPrefix)
		if err != nil {
			return sc, err
		}
		parts, err := detector.NewPartDetector(engine, detector.CountingPartConfig(labels))
		if err != nil {
			return sc, err
		}
		sc.Parts = parts

	case config.ModeAssembly:
		labels, err := yolo.LoadLabelsFile(cfg.LabelsPath(classifyLabels), labelPrefix)
		if err != nil {
			return sc, err
		}
		classifier, err := detector.NewClassifier(engine, detector.DefaultClassifierConfig(labels))
		if err != nil {
			return sc, err
		}
		sc.Classifier = classifier

		// counted steps in the sequence are confirmed by the part model
		partNames, err := yolo.LoadLabelsFile(cfg.LabelsPath(detectLabels), 0)
		if err != nil {
			return sc, err
		}
		parts, err := detector.NewPartDetector(engine, detector.AssemblyPartConfig(partNames))
		if err != nil {
			return sc, err
		}
		sc.Parts = parts
	}
	return sc, nil
}

// runTray blocks on the tray menu until the operator quits or a signal arrives.
func runTray(cfg *config.Config, station *app.App, logger *zap.SugaredLogger) {
	tr := tray.New(station.IsEnabled())
	tr.OnToggle(func(enabled bool) {
		if err := station.SetEnabled(enabled); err != nil {
			logger.Warnw("failed to save validation state", "error", err)
		}
	})
	tr.OnReset(station.ResetSequence)
	tr.OnSettings(func() {
		if err := openBrowser(settingsURL(cfg.Addr)); err != nil {
			logger.Warnw("failed to open settings", "error", err)
		}
	})

	done := make(chan struct{})
	tr.OnQuit(func() { close(done) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sigCh:
				tr.Quit()
				return
			case <-done:
				return
			case <-ticker.C:
				st := station.Status()
				tr.SetStatus(st.Describe())
				if st.Enabled != tr.IsEnabled() {
					tr.SetEnabled(st.Enabled)
				}
			}
		}
	}()

	tr.Run()
}

// settingsURL turns the listen address into a local URL.
func settingsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
