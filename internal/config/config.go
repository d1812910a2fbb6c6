package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MeKo-Tech/medscan/internal/capture"
	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/schedule"
)

// Config represents the complete configuration for the medscan application.
// It covers all commands (verify, extract, serve) and supports loading from
// configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Recognition settings
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`

	// Capture loop settings
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture" json:"capture"`

	// Dose timing settings
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule" json:"schedule"`

	// Session record delivery settings
	Records RecordsConfig `mapstructure:"records" yaml:"records" json:"records"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// RecognizerConfig contains OCR engine settings.
type RecognizerConfig struct {
	Languages    []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	PageSegMode  int      `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
	Preprocess   bool     `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	MinHeight    int      `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
	TargetHeight int      `mapstructure:"target_height" yaml:"target_height" json:"target_height"`
}

// CaptureConfig contains capture loop settings.
type CaptureConfig struct {
	Auto                bool `mapstructure:"auto" yaml:"auto" json:"auto"`
	AttemptLimit        int  `mapstructure:"attempt_limit" yaml:"attempt_limit" json:"attempt_limit"`
	NoLabelWindowSec    int  `mapstructure:"no_label_window_sec" yaml:"no_label_window_sec" json:"no_label_window_sec"`
	ThrottleSec         int  `mapstructure:"throttle_sec" yaml:"throttle_sec" json:"throttle_sec"`
	RecognizeTimeoutSec int  `mapstructure:"recognize_timeout_sec" yaml:"recognize_timeout_sec" json:"recognize_timeout_sec"`
}

// ScheduleConfig contains dose timing settings.
type ScheduleConfig struct {
	OnTimeMinutes int    `mapstructure:"on_time_minutes" yaml:"on_time_minutes" json:"on_time_minutes"`
	LateMinutes   int    `mapstructure:"late_minutes" yaml:"late_minutes" json:"late_minutes"`
	Timezone      string `mapstructure:"timezone" yaml:"timezone" json:"timezone"`
}

// RecordsConfig contains session record delivery settings.
type RecordsConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RatePerMinute   int    `mapstructure:"rate_per_minute" yaml:"rate_per_minute" json:"rate_per_minute"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	rec := recognize.DefaultConfig()
	loop := capture.DefaultConfig()
	win := schedule.DefaultWindow()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Recognizer: RecognizerConfig{
			Languages:    rec.Languages,
			PageSegMode:  rec.PageSegMode,
			Preprocess:   rec.Preprocess.Enabled,
			MinHeight:    rec.Preprocess.MinHeight,
			TargetHeight: rec.Preprocess.TargetHeight,
		},
		Capture: CaptureConfig{
			Auto:                loop.Auto,
			AttemptLimit:        loop.AttemptLimit,
			NoLabelWindowSec:    int(loop.NoLabelWindow / time.Second),
			ThrottleSec:         int(loop.Throttle / time.Second),
			RecognizeTimeoutSec: int(loop.RecognizeTimeout / time.Second),
		},
		Schedule: ScheduleConfig{
			OnTimeMinutes: int(win.OnTime / time.Minute),
			LateMinutes:   int(win.Late / time.Minute),
			Timezone:      "UTC",
		},
		Records: RecordsConfig{
			TimeoutSec: 5,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			RatePerMinute:   60,
		},
	}
}

// ToRecognizerConfig converts the loaded settings into the recognizer's
// native configuration.
func (c *Config) ToRecognizerConfig() recognize.Config {
	cfg := recognize.DefaultConfig()
	if len(c.Recognizer.Languages) > 0 {
		cfg.Languages = c.Recognizer.Languages
	}
	cfg.PageSegMode = c.Recognizer.PageSegMode
	cfg.Preprocess.Enabled = c.Recognizer.Preprocess
	if c.Recognizer.MinHeight > 0 {
		cfg.Preprocess.MinHeight = c.Recognizer.MinHeight
	}
	if c.Recognizer.TargetHeight > 0 {
		cfg.Preprocess.TargetHeight = c.Recognizer.TargetHeight
	}
	return cfg
}

// ToCaptureConfig converts the loaded settings into the capture loop's
// native configuration.
func (c *Config) ToCaptureConfig() capture.Config {
	return capture.Config{
		Auto:             c.Capture.Auto,
		AttemptLimit:     c.Capture.AttemptLimit,
		NoLabelWindow:    time.Duration(c.Capture.NoLabelWindowSec) * time.Second,
		Throttle:         time.Duration(c.Capture.ThrottleSec) * time.Second,
		RecognizeTimeout: time.Duration(c.Capture.RecognizeTimeoutSec) * time.Second,
	}
}

// ToScheduleWindow converts the loaded settings into drift windows.
func (c *Config) ToScheduleWindow() schedule.Window {
	return schedule.Window{
		OnTime: time.Duration(c.Schedule.OnTimeMinutes) * time.Minute,
		Late:   time.Duration(c.Schedule.LateMinutes) * time.Minute,
	}
}

// Validate checks the configuration for invalid values and returns an
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level must be one of debug, info, warn, error (got %q)", c.LogLevel))
	}

	if len(c.Recognizer.Languages) == 0 {
		errs = append(errs, "recognizer.languages must not be empty")
	}
	if c.Recognizer.PageSegMode < 0 || c.Recognizer.PageSegMode > 13 {
		errs = append(errs, fmt.Sprintf("recognizer.page_seg_mode must be between 0 and 13 (got %d)", c.Recognizer.PageSegMode))
	}
	if c.Recognizer.MinHeight < 0 || c.Recognizer.TargetHeight < 0 {
		errs = append(errs, "recognizer heights must not be negative")
	}
	if c.Recognizer.MinHeight > 0 && c.Recognizer.TargetHeight > 0 &&
		c.Recognizer.TargetHeight < c.Recognizer.MinHeight {
		errs = append(errs, "recognizer.target_height must not be below recognizer.min_height")
	}

	if c.Capture.AttemptLimit < 1 {
		errs = append(errs, fmt.Sprintf("capture.attempt_limit must be at least 1 (got %d)", c.Capture.AttemptLimit))
	}
	if c.Capture.NoLabelWindowSec < 1 {
		errs = append(errs, "capture.no_label_window_sec must be at least 1")
	}
	if c.Capture.ThrottleSec < 0 {
		errs = append(errs, "capture.throttle_sec must not be negative")
	}
	if c.Capture.RecognizeTimeoutSec < 1 {
		errs = append(errs, "capture.recognize_timeout_sec must be at least 1")
	}

	if c.Schedule.OnTimeMinutes < 0 || c.Schedule.LateMinutes < 0 {
		errs = append(errs, "schedule windows must not be negative")
	}
	if c.Schedule.LateMinutes < c.Schedule.OnTimeMinutes {
		errs = append(errs, "schedule.late_minutes must not be below schedule.on_time_minutes")
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("schedule.timezone is not a valid IANA zone: %q", c.Schedule.Timezone))
		}
	}

	if c.Records.TimeoutSec < 1 {
		errs = append(errs, "records.timeout_sec must be at least 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535 (got %d)", c.Server.Port))
	}
	if c.Server.MaxUploadMB < 1 {
		errs = append(errs, "server.max_upload_mb must be at least 1")
	}
	if c.Server.TimeoutSec < 1 {
		errs = append(errs, "server.timeout_sec must be at least 1")
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if c.Server.RatePerMinute < 0 {
		errs = append(errs, "server.rate_per_minute must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
