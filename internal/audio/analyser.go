// Package audio reads audio analysis data and reduces it to meter levels.
package audio

import (
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-meter/internal/media"
)

// ErrNoAudioTrack is returned when a stream has no audio track that delivers PCM.
var ErrNoAudioTrack = errors.New("stream has no PCM audio track")

// Analyser exposes frequency and time-domain snapshots using byte conventions:
// frequency bins scaled to [0,255], time-domain samples centred at 128.
type Analyser interface {
	FrequencyBinCount() int
	FFTSize() int
	ByteFrequencyData(dst []byte)
	ByteTimeDomainData(dst []byte)
}

// Liveness is implemented by analysers that know whether the most recent
// read consumed new audio.
type Liveness interface {
	Fresh() bool
}

// IsFresh reports whether the last read of a produced new data.
// Analysers without Liveness are always considered fresh.
func IsFresh(a Analyser) bool {
	if l, ok := a.(Liveness); ok {
		return l.Fresh()
	}
	return true
}

// Node is an analyser connected to a stream. Disconnect releases the connection.
type Node interface {
	Analyser
	Disconnect()
}

// Context creates analysis nodes for media streams.
type Context interface {
	NewAnalyser(stream *media.Stream) (Node, error)
}

// Reduction selects how an analyser snapshot is reduced to a single level.
type Reduction string

// Supported reductions.
const (
	MeanFrequency  Reduction = "mean-frequency"
	PeakTimeDomain Reduction = "peak-time-domain"
)

// ParseReduction validates a reduction name. An empty name selects MeanFrequency.
func ParseReduction(s string) (Reduction, error) {
	switch Reduction(s) {
	case "", MeanFrequency:
		return MeanFrequency, nil
	case PeakTimeDomain:
		return PeakTimeDomain, nil
	default:
		return "", fmt.Errorf("unknown reduction %q", s)
	}
}
