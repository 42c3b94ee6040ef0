package audio

import (
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// LevelMonitor combines peak hold and silence detection over successive level readings.
type LevelMonitor struct {
	peaks   *PeakHolder
	silence *SilenceDetector
	cfg     SilenceConfig
}

// NewLevelMonitor returns a monitor using cfg for silence detection.
func NewLevelMonitor(cfg SilenceConfig) *LevelMonitor {
	return &LevelMonitor{
		peaks:   NewPeakHolder(),
		silence: NewSilenceDetector(),
		cfg:     cfg,
	}
}

// Update folds l into the monitor state and returns the levels plus the silence transition.
func (m *LevelMonitor) Update(l Levels, now time.Time) (types.AudioLevels, SilenceEvent) {
	ev := m.silence.Update(l.RMS, m.cfg, now)
	out := types.AudioLevels{
		RMS:               l.RMS,
		Peak:              l.Peak,
		HeldPeak:          m.peaks.Update(l.Peak, now),
		Clips:             l.Clips,
		Silence:           ev.InSilence,
		SilenceDurationMs: ev.DurationMs,
	}
	if ev.InSilence {
		out.SilenceLevel = types.SilenceLevelActive
	}
	return out, ev
}

// Reset clears held peaks and silence state.
func (m *LevelMonitor) Reset() {
	m.peaks.Reset()
	m.silence.Reset()
}
