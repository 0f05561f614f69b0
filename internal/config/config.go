// Package config handles coordination-core configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is swapped out in tests to avoid picking up real
// config files on the developer's machine.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order. An explicit
// path (from --config flag) is checked first. Then: ./config.yaml,
// ~/.config/roverctl/config.yaml, /config/config.yaml,
// /etc/roverctl/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "roverctl", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // container convention
	paths = append(paths, "/etc/roverctl/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// Config holds the coordination core's configuration surface (spec §6).
type Config struct {
	IPC             IPCConfig             `yaml:"ipc"`
	Nav             NavConfig             `yaml:"nav"`
	STT             STTConfig             `yaml:"stt"`
	Orchestrator    OrchestratorConfig    `yaml:"orchestrator"`
	Safety          SafetyConfig          `yaml:"safety"`
	RemoteInterface RemoteInterfaceConfig `yaml:"remote_interface"`
	DataDir         string                `yaml:"data_dir"`
	LogLevel        string                `yaml:"log_level"`
}

// IPCConfig names the bus hub's two loopback endpoints.
type IPCConfig struct {
	Upstream   string `yaml:"upstream"`
	Downstream string `yaml:"downstream"`
}

// NavConfig configures the UART motor bridge's physical connection
// and the direction-to-wire-token mapping it writes.
type NavConfig struct {
	UARTDevice string            `yaml:"uart_device"`
	BaudRate   int               `yaml:"baud_rate"`
	Commands   map[string]string `yaml:"commands"`
}

// STTConfig bounds how long the orchestrator waits for a transcription
// and how confident it must be to accept one.
type STTConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MinConfidence  float64 `yaml:"min_confidence"`
}

// OrchestratorConfig carries the remaining phase timeouts from spec §6.
type OrchestratorConfig struct {
	LLMTimeoutSeconds      int `yaml:"llm_timeout_seconds"`
	SpeakingTimeoutSeconds int `yaml:"speaking_timeout_seconds"`
	ErrorTimeoutSeconds    int `yaml:"error_timeout_seconds"`
}

// SafetyConfig configures the software safety veto thresholds shared
// by the motor bridge and the orchestrator's own sensorVeto check.
type SafetyConfig struct {
	StopDistanceCM    int `yaml:"stop_distance_cm"`
	WarningDistanceCM int `yaml:"warning_distance_cm"`
	SensorFreshnessMS int `yaml:"sensor_freshness_ms"`
}

// RemoteInterfaceConfig configures the supervision HTTP surface.
type RemoteInterfaceConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	MJPEGFPS          int      `yaml:"mjpeg_fps"`
	SessionTimeoutSec int      `yaml:"session_timeout_sec"`
	AllowedCIDRs      []string `yaml:"allowed_cidrs"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${ROVERCTL_REMOTE_TOKEN}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.IPC.Upstream == "" {
		c.IPC.Upstream = "127.0.0.1:8701"
	}
	if c.IPC.Downstream == "" {
		c.IPC.Downstream = "127.0.0.1:8702"
	}
	if c.Nav.UARTDevice == "" {
		c.Nav.UARTDevice = "/dev/ttyUSB0"
	}
	if c.Nav.BaudRate == 0 {
		c.Nav.BaudRate = 9600
	}
	if c.Nav.Commands == nil {
		c.Nav.Commands = map[string]string{
			"forward":  "FORWARD",
			"backward": "BACKWARD",
			"left":     "LEFT",
			"right":    "RIGHT",
			"stop":     "STOP",
			"scan":     "SCAN",
		}
	}
	if c.STT.TimeoutSeconds == 0 {
		c.STT.TimeoutSeconds = 15
	}
	if c.Orchestrator.LLMTimeoutSeconds == 0 {
		c.Orchestrator.LLMTimeoutSeconds = 10
	}
	if c.Orchestrator.SpeakingTimeoutSeconds == 0 {
		c.Orchestrator.SpeakingTimeoutSeconds = 30
	}
	if c.Orchestrator.ErrorTimeoutSeconds == 0 {
		c.Orchestrator.ErrorTimeoutSeconds = 30
	}
	if c.Safety.StopDistanceCM == 0 {
		c.Safety.StopDistanceCM = 10
	}
	if c.Safety.WarningDistanceCM == 0 {
		c.Safety.WarningDistanceCM = 20
	}
	if c.Safety.SensorFreshnessMS == 0 {
		c.Safety.SensorFreshnessMS = 2000
	}
	if c.RemoteInterface.Host == "" {
		c.RemoteInterface.Host = "0.0.0.0"
	}
	if c.RemoteInterface.Port == 0 {
		c.RemoteInterface.Port = 8080
	}
	if c.RemoteInterface.MJPEGFPS == 0 {
		c.RemoteInterface.MJPEGFPS = 10
	}
	if c.RemoteInterface.SessionTimeoutSec == 0 {
		c.RemoteInterface.SessionTimeoutSec = 300
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.RemoteInterface.Port < 1 || c.RemoteInterface.Port > 65535 {
		return fmt.Errorf("remote_interface.port %d out of range (1-65535)", c.RemoteInterface.Port)
	}
	if c.Nav.BaudRate <= 0 {
		return fmt.Errorf("nav.baud_rate must be positive, got %d", c.Nav.BaudRate)
	}
	if c.STT.MinConfidence < 0 || c.STT.MinConfidence > 1 {
		return fmt.Errorf("stt.min_confidence %f out of range (0-1)", c.STT.MinConfidence)
	}
	if c.Safety.WarningDistanceCM < c.Safety.StopDistanceCM {
		return fmt.Errorf("safety.warning_distance_cm (%d) must be >= safety.stop_distance_cm (%d)",
			c.Safety.WarningDistanceCM, c.Safety.StopDistanceCM)
	}
	for _, dir := range []string{"forward", "backward", "left", "right", "stop", "scan"} {
		if c.Nav.Commands[dir] == "" {
			return fmt.Errorf("nav.commands missing token for direction %q", dir)
		}
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration suitable for local
// development against the simulated peripheral. All defaults are
// already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
