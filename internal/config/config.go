// Package config loads station settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Mode selects which station workflow the app runs.
type Mode string

const (
	// ModePicking validates that the operator's hand reaches into the expected zone.
	ModePicking Mode = "picking"
	// ModeCounting counts parts held in the hand against the zone's amount.
	ModeCounting Mode = "counting"
	// ModeAssembly validates a fixed sequence of assembly steps.
	ModeAssembly Mode = "assembly"
)

// Config holds all station settings.
type Config struct {
	Addr            string
	DataDir         string
	WebDir          string
	HookDir         string
	CameraID        int
	DepthID         int
	LabelsDir       string
	Mode            Mode
	InferenceScript string
	ValidationCount int
	Cumulative      bool
	PalmScore       float64
	PalmNMS         float64
	MotionThreshold float64
	LogLevel        string
}

// Load reads an optional .env file from the working directory and then the
// POKAYOKE_* environment variables.
func Load() (*Config, error) {
	// Missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := getEnv("POKAYOKE_DATA_DIR", filepath.Join(home, ".pokayoke"))

	cfg := &Config{
		Addr:            getEnv("POKAYOKE_ADDR", ":8080"),
		DataDir:         dataDir,
		WebDir:          getEnv("POKAYOKE_WEB_DIR", ""),
		HookDir:         getEnv("POKAYOKE_HOOK_DIR", filepath.Join(dataDir, "hooks")),
		CameraID:        getEnvAsInt("POKAYOKE_CAMERA_ID", 0),
		DepthID:         getEnvAsInt("POKAYOKE_DEPTH_ID", -1),
		LabelsDir:       getEnv("POKAYOKE_LABELS_DIR", filepath.Join(dataDir, "labels")),
		Mode:            Mode(getEnv("POKAYOKE_MODE", string(ModePicking))),
		InferenceScript: getEnv("POKAYOKE_INFERENCE_SCRIPT", "scripts/inference_service.py"),
		ValidationCount: getEnvAsInt("POKAYOKE_VALIDATION_COUNT", 10),
		Cumulative:      getEnvAsBool("POKAYOKE_CUMULATIVE", false),
		PalmScore:       getEnvAsFloat("POKAYOKE_PALM_SCORE", 0.6),
		PalmNMS:         getEnvAsFloat("POKAYOKE_PALM_NMS", 0.3),
		MotionThreshold: getEnvAsFloat("POKAYOKE_MOTION_THRESHOLD", 1.0),
		LogLevel:        getEnv("POKAYOKE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePicking, ModeCounting, ModeAssembly:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.ValidationCount <= 0 {
		return fmt.Errorf("validation count must be positive, got %d", c.ValidationCount)
	}
	if c.PalmScore <= 0 || c.PalmScore >= 1 {
		return fmt.Errorf("palm score threshold must be in (0, 1), got %v", c.PalmScore)
	}
	if c.PalmNMS <= 0 || c.PalmNMS > 1 {
		return fmt.Errorf("palm nms threshold must be in (0, 1], got %v", c.PalmNMS)
	}
	return nil
}

// DBPath returns the sqlite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "pokayoke.db")
}

// LabelsPath returns the location of a label file inside the labels directory.
func (c *Config) LabelsPath(name string) string {
	return filepath.Join(c.LabelsDir, name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
