package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CAN.Interface != "can0" {
		t.Errorf("CAN.Interface = %q, want can0", cfg.CAN.Interface)
	}
	if cfg.Backend.Port != 9000 {
		t.Errorf("Backend.Port = %d, want 9000", cfg.Backend.Port)
	}
	if cfg.Status.Port != 8080 {
		t.Errorf("Status.Port = %d, want 8080", cfg.Status.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
can:
  interface: vcan0
backend:
  host: 10.0.0.5
  port: 1883
status:
  port: 0
mqtt_diagnostics:
  enabled: true
nodes:
  - identity: "AA:BB:CC:DD:EE:FF"
    label: front-sensor
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CAN.Interface != "vcan0" {
		t.Errorf("CAN.Interface = %q, want vcan0", cfg.CAN.Interface)
	}
	if cfg.Backend.Host != "10.0.0.5" || cfg.Backend.Port != 1883 {
		t.Errorf("Backend = %+v, want host=10.0.0.5 port=1883", cfg.Backend)
	}
	if cfg.Status.Port != 0 {
		t.Errorf("Status.Port = %d, want 0", cfg.Status.Port)
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	labels := cfg.KnownLabels()
	if labels["AA:BB:CC:DD:EE:FF"] != "front-sensor" {
		t.Errorf("KnownLabels() = %v, missing expected entry", labels)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file returned nil error")
	}
}
