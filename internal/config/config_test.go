package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindConfigExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("remote_interface:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfigSearchPathNotFound(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfigCWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("remote_interface:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("nav:\n  uart_device: ${ROVERCTL_TEST_DEVICE}\n"), 0600)
	os.Setenv("ROVERCTL_TEST_DEVICE", "/dev/ttyACM0")
	defer os.Unsetenv("ROVERCTL_TEST_DEVICE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Nav.UARTDevice != "/dev/ttyACM0" {
		t.Errorf("uart_device = %q, want /dev/ttyACM0", cfg.Nav.UARTDevice)
	}
}

func TestApplyDefaultsFillsEveryTunable(t *testing.T) {
	cfg := Default()

	if cfg.IPC.Upstream == "" || cfg.IPC.Downstream == "" {
		t.Error("expected ipc addresses to default")
	}
	if cfg.Nav.BaudRate != 9600 {
		t.Errorf("nav.baud_rate = %d, want 9600", cfg.Nav.BaudRate)
	}
	for _, dir := range []string{"forward", "backward", "left", "right", "stop", "scan"} {
		if cfg.Nav.Commands[dir] == "" {
			t.Errorf("nav.commands missing default token for %q", dir)
		}
	}
	if cfg.STT.TimeoutSeconds != 15 {
		t.Errorf("stt.timeout_seconds = %d, want 15", cfg.STT.TimeoutSeconds)
	}
	if cfg.Orchestrator.LLMTimeoutSeconds != 10 {
		t.Errorf("orchestrator.llm_timeout_seconds = %d, want 10", cfg.Orchestrator.LLMTimeoutSeconds)
	}
	if cfg.Safety.StopDistanceCM != 10 || cfg.Safety.WarningDistanceCM != 20 {
		t.Errorf("safety defaults = (%d, %d), want (10, 20)", cfg.Safety.StopDistanceCM, cfg.Safety.WarningDistanceCM)
	}
	if cfg.RemoteInterface.Port != 8080 || cfg.RemoteInterface.SessionTimeoutSec != 300 {
		t.Errorf("remote_interface defaults = (%d, %d), want (8080, 300)",
			cfg.RemoteInterface.Port, cfg.RemoteInterface.SessionTimeoutSec)
	}
}

func TestValidateRejectsPortOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.RemoteInterface.Port = 70000

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "remote_interface.port") {
		t.Errorf("expected remote_interface.port validation error, got %v", err)
	}
}

func TestValidateRejectsWarningBelowStopDistance(t *testing.T) {
	cfg := Default()
	cfg.Safety.StopDistanceCM = 30
	cfg.Safety.WarningDistanceCM = 10

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "safety.warning_distance_cm") {
		t.Errorf("expected warning/stop distance validation error, got %v", err)
	}
}

func TestValidateRejectsMissingCommandToken(t *testing.T) {
	cfg := Default()
	delete(cfg.Nav.Commands, "scan")

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `"scan"`) {
		t.Errorf("expected missing nav.commands token error, got %v", err)
	}
}

func TestValidateRejectsConfidenceOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.STT.MinConfidence = 1.5

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "stt.min_confidence") {
		t.Errorf("expected stt.min_confidence validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("safety:\n  stop_distance_cm: 15\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Safety.StopDistanceCM != 15 {
		t.Errorf("safety.stop_distance_cm = %d, want 15", cfg.Safety.StopDistanceCM)
	}
	if cfg.Safety.WarningDistanceCM != 20 {
		t.Errorf("safety.warning_distance_cm = %d, want default 20", cfg.Safety.WarningDistanceCM)
	}
}
