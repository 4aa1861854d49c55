package services

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	customlog "github.com/open-legged/controller/pkg/log"
)

const sampleConfig = `version: "1.0"
config_id: "svc-test"
robot_id: "anymal"
controller:
  frequency_hz: 400
`

func TestControllerConfigServiceServesLoadedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legged_controller.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	svc, err := NewControllerConfigService(path, customlog.NewWriterLogger("error", io.Discard))
	if err != nil {
		t.Fatalf("NewControllerConfigService failed: %v", err)
	}

	cfg := svc.GetCurrentConfig()
	if cfg.ConfigID != "svc-test" || cfg.Controller.FrequencyHz != 400 {
		t.Errorf("Unexpected config: %+v", cfg)
	}

	// Changes on disk are not picked up
	if err := os.WriteFile(path, []byte("version: \"2.0\"\n"), 0644); err != nil {
		t.Fatalf("Failed to overwrite config: %v", err)
	}
	raw, err := svc.GetCurrentConfigYAML()
	if err != nil {
		t.Fatalf("GetCurrentConfigYAML failed: %v", err)
	}
	if string(raw) != sampleConfig {
		t.Errorf("Expected the YAML the config was loaded from, got %q", raw)
	}
	if svc.ConfigPath() != path {
		t.Errorf("Expected path %s, got %s", path, svc.ConfigPath())
	}
}

func TestControllerConfigServiceRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	logger := customlog.NewWriterLogger("error", io.Discard)

	if _, err := NewControllerConfigService("", logger); err == nil {
		t.Errorf("Expected error for empty path")
	}
	if _, err := NewControllerConfigService(filepath.Join(dir, "missing.yaml"), logger); err == nil {
		t.Errorf("Expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("controller:\n  frequency_hz: -1\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	_, err := NewControllerConfigService(bad, logger)
	if err == nil || !strings.Contains(err.Error(), "frequency_hz") {
		t.Errorf("Expected validation error, got %v", err)
	}
}
