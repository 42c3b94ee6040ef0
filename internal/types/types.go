// Package types provides shared type definitions used across the meter.
package types

import (
	"time"
)

// SourceState represents the current state of the PCM source.
type SourceState string

const (
	// StateStopped indicates the source is not running.
	StateStopped SourceState = "stopped"
	// StateStarting indicates the source is initializing or waiting to retry.
	StateStarting SourceState = "starting"
	// StateRunning indicates the source is delivering PCM.
	StateRunning SourceState = "running"
	// StateStopping indicates the source is shutting down.
	StateStopping SourceState = "stopping"
)

const (
	// InitialRetryDelay is the starting delay between retry attempts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between retry attempts.
	MaxRetryDelay = 60000 * time.Millisecond
	// MaxRetries is the maximum number of retry attempts for the audio source.
	MaxRetries = 10
	// SuccessThreshold is the duration after which retry count resets.
	SuccessThreshold = 30000 * time.Millisecond
)

// ShutdownTimeout is the duration to wait for graceful shutdown.
const ShutdownTimeout = 3000 * time.Millisecond

// Audio format constants for PCM capture.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of audio channels (stereo).
	Channels = 2
)

// SourceStatus contains a summary of the PCM source's operational state.
type SourceStatus struct {
	State      SourceState `json:"state"`                // Current source state
	Name       string      `json:"name"`                 // Capture device or file path
	Uptime     string      `json:"uptime,omitzero"`      // Time since the source last started
	LastError  string      `json:"last_error,omitzero"`  // Most recent error
	RetryCount int         `json:"retry_count,omitzero"` // Consecutive failed attempts
	MaxRetries int         `json:"max_retries"`          // Attempts before giving up
	Exhausted  bool        `json:"exhausted,omitzero"`   // Source gave up after MaxRetries
}

// TrackStatus describes the audio track the meter is watching.
type TrackStatus struct {
	Present    bool   `json:"present"`          // A first audio track exists
	Count      int    `json:"count"`            // Number of audio tracks in the stream
	ID         string `json:"id,omitzero"`      // Track identifier
	Label      string `json:"label,omitzero"`   // Track label
	Enabled    bool   `json:"enabled"`          // Consumer-controlled enabled flag
	Muted      bool   `json:"muted"`            // Producer halted delivery
	ReadyState string `json:"ready_state"`      // "live" or "ended"
	Dropped    int    `json:"dropped,omitzero"` // PCM chunks dropped by the analyser
}

// AlertStatus is the alert shown in place of the meter.
type AlertStatus struct {
	Kind    string `json:"kind,omitzero"`    // Alert kind, empty when healthy
	Message string `json:"message,omitzero"` // Human-readable message
	Unmute  bool   `json:"unmute,omitzero"`  // User may re-enable the track
}

// MeterStatus contains the meter widget's runtime state.
type MeterStatus struct {
	Running        bool    `json:"running"`         // Frame loop is live
	Enabled        bool    `json:"enabled"`         // Meter enabled flag
	Stale          bool    `json:"stale"`           // Watchdog expired
	Shape          string  `json:"shape"`           // circle, stepped or flat
	BucketCount    int     `json:"bucket_count"`    // Bars drawn by bar shapes
	Width          int     `json:"width"`           // Surface width in pixels
	Height         int     `json:"height"`          // Surface height in pixels
	PreviousVolume float64 `json:"previous_volume"` // Last effective volume
	Frames         uint64  `json:"frames"`          // Frames drawn since the loop started
}

// SilenceLevel represents the silence detection state.
type SilenceLevel string

// SilenceLevelActive indicates silence is confirmed.
const SilenceLevelActive SilenceLevel = "active"

// AudioLevels contains level measurements of the analysis window.
type AudioLevels struct {
	RMS               float64      `json:"rms"`                          // RMS level in dB
	Peak              float64      `json:"peak"`                         // Peak level in dB
	HeldPeak          float64      `json:"held_peak"`                    // Peak held for the hold duration
	Clips             int          `json:"clips,omitzero"`               // Samples near full scale
	Silence           bool         `json:"silence,omitzero"`             // True if audio below threshold
	SilenceDurationMs int64        `json:"silence_duration_ms,omitzero"` // Silence duration in milliseconds
	SilenceLevel      SilenceLevel `json:"silence_level,omitzero"`       // "active" when in confirmed silence state
}

// AudioDevice represents an available audio input device.
type AudioDevice struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// VersionInfo contains build and protocol version data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Newer version exists
	Protocol    string `json:"protocol"`             // Display-list protocol version
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// WSStatusResponse is sent to clients with full meter, track and source status.
type WSStatusResponse struct {
	Type            string        `json:"type"`             // Message type identifier
	FFmpegAvailable bool          `json:"ffmpeg_available"` // FFmpeg binary is available
	Meter           MeterStatus   `json:"meter"`            // Meter widget state
	Alert           AlertStatus   `json:"alert"`            // Current alert
	Track           TrackStatus   `json:"track"`            // Watched track
	Source          SourceStatus  `json:"source"`           // PCM source
	Levels          AudioLevels   `json:"levels"`           // Window levels
	Devices         []AudioDevice `json:"devices"`          // Available audio devices
	Version         VersionInfo   `json:"version"`          // Version information
}

// WSFrameResponse carries one display-list frame.
type WSFrameResponse struct {
	Type  string `json:"type"`  // "frame"
	Frame any    `json:"frame"` // Display-list frame
}

// WSEventResponse notifies clients of a meter lifecycle event.
type WSEventResponse struct {
	Type      string `json:"type"`            // "event"
	Event     string `json:"event"`           // Lifecycle event name, e.g. "started" or "alert"
	Detail    string `json:"detail,omitzero"` // Alert message or silence transition
	Timestamp string `json:"timestamp"`       // RFC3339 timestamp
}

// WSHelloResponse answers a client hello with protocol compatibility.
type WSHelloResponse struct {
	Type       string      `json:"type"`       // "hello"
	Compatible bool        `json:"compatible"` // Client protocol is supported
	Version    VersionInfo `json:"version"`    // Server version information
}
