// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort           = 8080
	DefaultShape             = "stepped"
	DefaultBucketCount       = 5
	DefaultWidth             = 300
	DefaultHeight            = 50
	DefaultDecayFactor       = 0.9
	DefaultTooLoud           = 0.8
	DefaultWatchdogPeriodMs  = 1000
	DefaultReduction         = "mean-frequency"
	DefaultFPS               = 60
	DefaultFFTSize           = 2048
	DefaultSilenceThreshold  = -40.0
	DefaultSilenceDurationMs = 15000 // 15 seconds in milliseconds
	DefaultSilenceRecoveryMs = 5000  // 5 seconds in milliseconds
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	// FFmpegPath is the FFmpeg binary (empty = use PATH).
	FFmpegPath string `json:"ffmpeg_path"`
	Port       int    `json:"port" validate:"gte=1,lte=65535"`
	// EventLog is the JSON lines lifecycle log (empty = disabled).
	EventLog   string `json:"event_log"`
	// Username enables basic auth on the websocket and API (empty = open).
	Username   string `json:"username"`
	Password   string `json:"password" validate:"required_with=Username"`
}

// MeterConfig holds the widget settings. They can be changed at runtime.
type MeterConfig struct {
	Shape            string  `json:"shape" validate:"required,oneof=circle stepped flat"`
	BucketCount      int     `json:"bucket_count" validate:"gte=1,lte=256"`
	Width            int     `json:"width" validate:"gte=1,lte=8192"`
	Height           int     `json:"height" validate:"gte=1,lte=8192"`
	Enabled          bool    `json:"enabled"`
	DecayFactor      float64 `json:"decay_factor" validate:"gte=0.9,lte=0.95"`
	TooLoud          float64 `json:"too_loud_threshold" validate:"gt=0,lte=1"`
	WatchdogPeriodMs int64   `json:"watchdog_period_ms" validate:"gte=100,lte=60000"`
	Reduction        string  `json:"reduction" validate:"oneof=mean-frequency peak-time-domain"`
	FPS              int     `json:"fps" validate:"gte=1,lte=240"`
	FFTSize          int     `json:"fft_size" validate:"oneof=32 64 128 256 512 1024 2048 4096 8192 16384 32768"`
}

// AudioConfig selects the PCM source: a capture device, or a file when File is set.
type AudioConfig struct {
	Input    string `json:"input"`     // Audio input device identifier
	File     string `json:"file"`      // wav, mp3, ogg or flac file played instead of capturing
	PlayOnce bool   `json:"play_once"` // End the track when the file finishes instead of looping
}

// SilenceDetectionConfig holds silence detection thresholds and timing parameters.
type SilenceDetectionConfig struct {
	ThresholdDB float64 `json:"threshold_db" validate:"gte=-100,lte=0"` // Silence threshold in dB
	DurationMs  int64   `json:"duration_ms" validate:"gte=0"`           // Duration below threshold before silence
	RecoveryMs  int64   `json:"recovery_ms" validate:"gte=0"`           // Duration above threshold before recovery
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System           SystemConfig           `json:"system"`
	Meter            MeterConfig            `json:"meter"`
	Audio            AudioConfig            `json:"audio"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection"`

	mu       sync.RWMutex
	filePath string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DefaultMeter returns the meter settings used for a new config file.
func DefaultMeter() MeterConfig {
	return MeterConfig{
		Shape:            DefaultShape,
		BucketCount:      DefaultBucketCount,
		Width:            DefaultWidth,
		Height:           DefaultHeight,
		Enabled:          true,
		DecayFactor:      DefaultDecayFactor,
		TooLoud:          DefaultTooLoud,
		WatchdogPeriodMs: DefaultWatchdogPeriodMs,
		Reduction:        DefaultReduction,
		FPS:              DefaultFPS,
		FFTSize:          DefaultFFTSize,
	}
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{Port: DefaultWebPort},
		Meter:  DefaultMeter(),
		SilenceDetection: SilenceDetectionConfig{
			ThresholdDB: DefaultSilenceThreshold,
			DurationMs:  DefaultSilenceDurationMs,
			RecoveryMs:  DefaultSilenceRecoveryMs,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return c.saveLocked()
	}
	if err != nil {
		return util.WrapError("read config", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", describe(err))
	}
	if err := util.ValidatePath("audio.file", c.Audio.File, true); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// describe flattens validator errors into "section.field: tag" messages.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field, _ := strings.CutPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}

	d := DefaultMeter()
	m := &c.Meter
	if m.Shape == "" {
		m.Shape = d.Shape
	}
	if m.BucketCount == 0 {
		m.BucketCount = d.BucketCount
	}
	if m.Width == 0 {
		m.Width = d.Width
	}
	if m.Height == 0 {
		m.Height = d.Height
	}
	if m.DecayFactor == 0 {
		m.DecayFactor = d.DecayFactor
	}
	if m.TooLoud == 0 {
		m.TooLoud = d.TooLoud
	}
	if m.WatchdogPeriodMs == 0 {
		m.WatchdogPeriodMs = d.WatchdogPeriodMs
	}
	if m.Reduction == "" {
		m.Reduction = d.Reduction
	}
	if m.FPS == 0 {
		m.FPS = d.FPS
	}
	if m.FFTSize == 0 {
		m.FFTSize = d.FFTSize
	}

	if c.SilenceDetection.ThresholdDB == 0 {
		c.SilenceDetection.ThresholdDB = DefaultSilenceThreshold
	}
	if c.SilenceDetection.DurationMs == 0 {
		c.SilenceDetection.DurationMs = DefaultSilenceDurationMs
	}
	if c.SilenceDetection.RecoveryMs == 0 {
		c.SilenceDetection.RecoveryMs = DefaultSilenceRecoveryMs
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.filePath
}

// SetMeter validates and persists new meter settings.
// Zero fields are filled from the current settings' defaults first.
func (c *Config) SetMeter(m MeterConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.Meter
	c.Meter = m
	c.applyDefaults()
	if err := c.validate(); err != nil {
		c.Meter = old
		return err
	}
	return c.saveLocked()
}

// SetMeterEnabled persists the meter's enabled flag.
func (c *Config) SetMeterEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Meter.Enabled = enabled
	return c.saveLocked()
}

// SetAudioInput persists the capture device.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Input = input
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	FFmpegPath  string
	EventLog    string

	// Meter
	Meter          MeterConfig
	WatchdogPeriod time.Duration

	// Audio
	AudioInput    string
	AudioFile     string
	AudioPlayOnce bool

	// Silence Detection
	SilenceThreshold  float64
	SilenceDurationMs int64
	SilenceRecoveryMs int64
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		FFmpegPath:  c.System.FFmpegPath,
		EventLog:    c.System.EventLog,

		Meter:          c.Meter,
		WatchdogPeriod: time.Duration(c.Meter.WatchdogPeriodMs) * time.Millisecond,

		AudioInput:    c.Audio.Input,
		AudioFile:     c.Audio.File,
		AudioPlayOnce: c.Audio.PlayOnce,

		SilenceThreshold:  c.SilenceDetection.ThresholdDB,
		SilenceDurationMs: c.SilenceDetection.DurationMs,
		SilenceRecoveryMs: c.SilenceDetection.RecoveryMs,
	}
}

// HasAuth reports whether commands require basic auth.
func (s *Snapshot) HasAuth() bool {
	return s.WebUser != ""
}

// HasEventLog reports whether lifecycle events are written to a file.
func (s *Snapshot) HasEventLog() bool {
	return s.EventLog != ""
}
