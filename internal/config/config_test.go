package config

import (
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POKAYOKE_DATA_DIR", t.TempDir())
	t.Setenv("POKAYOKE_MODE", "")
	t.Setenv("POKAYOKE_VALIDATION_COUNT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("expected addr :8080, got %s", cfg.Addr)
	}
	if cfg.Mode != ModePicking {
		t.Errorf("expected mode picking, got %s", cfg.Mode)
	}
	if cfg.ValidationCount != 10 {
		t.Errorf("expected validation count 10, got %d", cfg.ValidationCount)
	}
	if cfg.PalmScore != 0.6 {
		t.Errorf("expected palm score 0.6, got %v", cfg.PalmScore)
	}
	if cfg.DepthID != -1 {
		t.Errorf("expected depth disabled, got %d", cfg.DepthID)
	}
	if cfg.Cumulative {
		t.Error("expected consecutive counting by default")
	}
	if filepath.Base(cfg.DBPath()) != "pokayoke.db" {
		t.Errorf("unexpected db path %s", cfg.DBPath())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POKAYOKE_DATA_DIR", t.TempDir())
	t.Setenv("POKAYOKE_MODE", "assembly")
	t.Setenv("POKAYOKE_CAMERA_ID", "2")
	t.Setenv("POKAYOKE_PALM_NMS", "0.45")
	t.Setenv("POKAYOKE_CUMULATIVE", "true")
	t.Setenv("POKAYOKE_LABELS_DIR", "/opt/labels")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Mode != ModeAssembly {
		t.Errorf("expected mode assembly, got %s", cfg.Mode)
	}
	if cfg.CameraID != 2 {
		t.Errorf("expected camera 2, got %d", cfg.CameraID)
	}
	if cfg.PalmNMS != 0.45 {
		t.Errorf("expected nms 0.45, got %v", cfg.PalmNMS)
	}
	if !cfg.Cumulative {
		t.Error("expected cumulative counting")
	}
	if got := cfg.LabelsPath("part-labels.txt"); got != filepath.Join("/opt/labels", "part-labels.txt") {
		t.Errorf("unexpected labels path %s", got)
	}
}

func TestLoad_InvalidInteger(t *testing.T) {
	t.Setenv("POKAYOKE_DATA_DIR", t.TempDir())
	t.Setenv("POKAYOKE_CAMERA_ID", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.CameraID != 0 {
		t.Errorf("expected fallback camera 0, got %d", cfg.CameraID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown mode", func(c *Config) { c.Mode = "sorting" }, true},
		{"zero count", func(c *Config) { c.ValidationCount = 0 }, true},
		{"score out of range", func(c *Config) { c.PalmScore = 1.5 }, true},
		{"zero nms", func(c *Config) { c.PalmNMS = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Mode: ModeCounting, ValidationCount: 10, PalmScore: 0.6, PalmNMS: 0.3}
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
