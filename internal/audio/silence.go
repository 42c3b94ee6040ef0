package audio

import (
	"sync"
	"time"
)

// SilenceConfig holds the thresholds for silence detection.
type SilenceConfig struct {
	Threshold  float64 // dB level below which audio is considered silent
	DurationMs int64   // milliseconds of silence before triggering
	RecoveryMs int64   // milliseconds of audio before considering recovered
}

// DefaultSilenceConfig is used when no thresholds are configured.
var DefaultSilenceConfig = SilenceConfig{Threshold: -50, DurationMs: 5000, RecoveryMs: 1000}

// SilenceEvent represents the result of a silence detection update.
type SilenceEvent struct {
	InSilence  bool  // currently in confirmed silence state
	DurationMs int64 // current silence duration in ms (0 if not silent)

	JustEntered     bool  // true on the update where silence is first confirmed
	JustRecovered   bool  // true on the update where recovery completes
	TotalDurationMs int64 // total silence duration in ms (only set when JustRecovered)
}

// SilenceDetector tracks sustained silence on the metered signal.
// It is safe for concurrent use.
type SilenceDetector struct {
	mu                sync.Mutex
	silenceStart      time.Time
	recoveryStart     time.Time
	inSilence         bool
	silenceDurationMs int64
}

// NewSilenceDetector creates a new silence detector.
func NewSilenceDetector() *SilenceDetector {
	return &SilenceDetector{}
}

// Update feeds the current RMS level in dB and returns the detection state.
func (d *SilenceDetector) Update(db float64, cfg SilenceConfig, now time.Time) SilenceEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var event SilenceEvent

	if db < cfg.Threshold {
		d.recoveryStart = time.Time{}
		if d.silenceStart.IsZero() {
			d.silenceStart = now
		}
		d.silenceDurationMs = now.Sub(d.silenceStart).Milliseconds()

		switch {
		case d.inSilence:
			event.InSilence = true
			event.DurationMs = d.silenceDurationMs
		case d.silenceDurationMs >= cfg.DurationMs:
			d.inSilence = true
			event.InSilence = true
			event.DurationMs = d.silenceDurationMs
			event.JustEntered = true
		}
		return event
	}

	if !d.inSilence {
		d.silenceStart = time.Time{}
		return event
	}

	// Silence start is kept until recovery completes.
	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}
	if now.Sub(d.recoveryStart).Milliseconds() >= cfg.RecoveryMs {
		event.JustRecovered = true
		event.TotalDurationMs = d.silenceDurationMs
		d.inSilence = false
		d.silenceDurationMs = 0
		d.silenceStart = time.Time{}
		d.recoveryStart = time.Time{}
		return event
	}

	event.InSilence = true
	return event
}

// Reset clears the silence detection state.
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silenceStart = time.Time{}
	d.recoveryStart = time.Time{}
	d.inSilence = false
	d.silenceDurationMs = 0
}
