package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"eng"}, cfg.Recognizer.Languages)
	assert.True(t, cfg.Capture.Auto)
	assert.Equal(t, 3, cfg.Capture.AttemptLimit)
	assert.Equal(t, 30, cfg.Capture.NoLabelWindowSec)
	assert.Equal(t, 2, cfg.Capture.ThrottleSec)
	assert.Equal(t, 60, cfg.Schedule.OnTimeMinutes)
	assert.Equal(t, 120, cfg.Schedule.LateMinutes)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"no languages", func(c *Config) { c.Recognizer.Languages = nil }, "recognizer.languages"},
		{"psm out of range", func(c *Config) { c.Recognizer.PageSegMode = 14 }, "page_seg_mode"},
		{"zero attempt limit", func(c *Config) { c.Capture.AttemptLimit = 0 }, "attempt_limit"},
		{"zero window", func(c *Config) { c.Capture.NoLabelWindowSec = 0 }, "no_label_window_sec"},
		{"late below on-time", func(c *Config) { c.Schedule.LateMinutes = 30 }, "late_minutes"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "timezone"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero upload cap", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max_upload_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "server.port")
}

func TestToCaptureConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.NoLabelWindowSec = 45
	cfg.Capture.ThrottleSec = 3

	got := cfg.ToCaptureConfig()
	assert.Equal(t, 45*time.Second, got.NoLabelWindow)
	assert.Equal(t, 3*time.Second, got.Throttle)
	assert.Equal(t, 10*time.Second, got.RecognizeTimeout)
	assert.True(t, got.Auto)
}

func TestToScheduleWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule.OnTimeMinutes = 30
	cfg.Schedule.LateMinutes = 90

	got := cfg.ToScheduleWindow()
	assert.Equal(t, 30*time.Minute, got.OnTime)
	assert.Equal(t, 90*time.Minute, got.Late)
}

func TestToRecognizerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recognizer.Languages = []string{"eng", "deu"}
	cfg.Recognizer.Preprocess = false

	got := cfg.ToRecognizerConfig()
	assert.Equal(t, []string{"eng", "deu"}, got.Languages)
	assert.False(t, got.Preprocess.Enabled)
}

func TestLoadWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medscan.yaml")
	content := `
log_level: debug
capture:
  attempt_limit: 5
  throttle_sec: 1
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewIsolatedLoader().LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Capture.AttemptLimit)
	assert.Equal(t, 1, cfg.Capture.ThrottleSec)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched settings keep their defaults.
	assert.Equal(t, 30, cfg.Capture.NoLabelWindowSec)
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoadWithFile_Missing(t *testing.T) {
	_, err := NewIsolatedLoader().LoadWithFile("/nonexistent/medscan.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	_, err := NewIsolatedLoader().LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("MEDSCAN_LOG_LEVEL", "warn")
	t.Setenv("MEDSCAN_SERVER_PORT", "7070")

	cfg, err := NewIsolatedLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7070, cfg.Server.Port)
}
