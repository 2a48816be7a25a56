package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error for missing file, got: %v", err)
	}

	if cfg.Audio.PreferredSampleRate != 16000 {
		t.Errorf("Expected preferred sample rate 16000, got %d", cfg.Audio.PreferredSampleRate)
	}
	if cfg.Audio.MaxSampleRate != 44100 {
		t.Errorf("Expected max sample rate 44100, got %d", cfg.Audio.MaxSampleRate)
	}
	if cfg.Output.MainFile != "audio.wav" {
		t.Errorf("Expected main file audio.wav, got %s", cfg.Output.MainFile)
	}
	if cfg.Recorder.SettleDelay() != 50*time.Millisecond {
		t.Errorf("Expected settle delay 50ms, got %v", cfg.Recorder.SettleDelay())
	}
	if cfg.Recorder.LevelInterval() != 50*time.Millisecond {
		t.Errorf("Expected level interval 50ms, got %v", cfg.Recorder.LevelInterval())
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	configFile := createTempConfig(t, `
audio:
  device: "USB Mic"
  preferred_sample_rate: 22050
recorder:
  settle_delay_ms: 0
  strict_format: true
output:
  directory: ~/Lectures
server:
  port: 9090
transcript:
  enabled: false
`)

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	homeDir, _ := os.UserHomeDir()
	if cfg.Output.Directory != filepath.Join(homeDir, "Lectures") {
		t.Errorf("Expected expanded output directory, got %s", cfg.Output.Directory)
	}
	if cfg.Audio.Device != "USB Mic" {
		t.Errorf("Expected device 'USB Mic', got %q", cfg.Audio.Device)
	}
	if cfg.Audio.PreferredSampleRate != 22050 {
		t.Errorf("Expected preferred sample rate 22050, got %d", cfg.Audio.PreferredSampleRate)
	}
	// untouched keys keep their defaults
	if cfg.Audio.MaxSampleRate != 44100 {
		t.Errorf("Expected default max sample rate, got %d", cfg.Audio.MaxSampleRate)
	}
	if cfg.Recorder.SettleDelayMs != 0 || !cfg.Recorder.StrictFormat {
		t.Errorf("Recorder section incorrect: %+v", cfg.Recorder)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Transcript.Enabled {
		t.Error("Expected transcript disabled")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("NOTECAPTURE_SERVER_PORT", "7070")
	t.Setenv("NOTECAPTURE_OUTPUT_MAIN_FILE", "lecture.wav")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070 from environment, got %d", cfg.Server.Port)
	}
	if cfg.Output.MainFile != "lecture.wav" {
		t.Errorf("Expected main file from environment, got %s", cfg.Output.MainFile)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	configFile := createTempConfig(t, "audio: [unclosed")

	if _, err := Load(configFile); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "notecapture.yaml")

	cfg := Default()
	cfg.Output.Directory = t.TempDir()
	cfg.Server.Port = 8181
	cfg.Recorder.StrictFormat = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("Reloaded config differs:\n got %+v\nwant %+v", *loaded, *cfg)
	}
}

func TestWriteDefault_RefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notecapture.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("First WriteDefault failed: %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Error("Expected error when config already exists")
	}
}

func TestSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notecapture.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	if err := Set(path, "server.port", "9999"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}

	if err := Set(path, "server.nope", "1"); err == nil {
		t.Error("Expected error for unknown key")
	}
	if err := Set(path, "server.port", "70000"); err == nil {
		t.Error("Expected validation error for out of range port")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Documents/NoteCapture", filepath.Join(homeDir, "Documents", "NoteCapture")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // Should not expand bare tilde
		{"", ""},
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notecapture.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
