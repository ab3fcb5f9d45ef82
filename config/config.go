// Package config loads the bridge's YAML configuration, following the same
// defaults-then-unmarshal pattern the teacher repo uses for its own config.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the bridge's top-level configuration.
type Config struct {
	CAN     CANConfig     `yaml:"can"`
	Backend BackendConfig `yaml:"backend"`
	Nodes   []NodeEntry   `yaml:"nodes"`
	Status  StatusConfig  `yaml:"status"`
	MQTT    MQTTConfig    `yaml:"mqtt_diagnostics"`
	Logs    LogsConfig    `yaml:"logs"`
}

// CANConfig names the SocketCAN interface to bind.
type CANConfig struct {
	Interface string `yaml:"interface"`
}

// BackendConfig is the broker every node's TCP connection fans out to.
type BackendConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// NodeEntry maps a known hardware identity to an operator-facing label,
// surfaced read-only by the status API. It has no effect on address
// assignment: any identity may still announce and be assigned the next
// free address, labeled or not.
type NodeEntry struct {
	Identity string `yaml:"identity"` // colon-hex, e.g. "DE:AD:BE:EF:00:01"
	Label    string `yaml:"label"`
}

// StatusConfig configures the read-only HTTP reporting API. Port 0 disables
// it entirely.
type StatusConfig struct {
	Port int `yaml:"port"`
}

// MQTTConfig toggles the optional MQTT diagnostic decoder.
type MQTTConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogsConfig controls the logger's verbosity and output path.
type LogsConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"` // empty means stderr
}

// Load reads and parses path, applying defaults for any field the file
// leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CAN: CANConfig{
			Interface: "can0",
		},
		Backend: BackendConfig{
			Host: "127.0.0.1",
			Port: 9000,
		},
		Status: StatusConfig{
			Port: 8080,
		},
		Logs: LogsConfig{
			Level: "info",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// KnownLabels builds the identity-string-to-label lookup the status API
// reports node labels through.
func (c *Config) KnownLabels() map[string]string {
	out := make(map[string]string, len(c.Nodes))
	for _, n := range c.Nodes {
		out[n.Identity] = n.Label
	}
	return out
}
